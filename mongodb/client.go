package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/v2/mongo/otelmongo"
)

// UsersCollection holds the local identity records.
const UsersCollection = "users"

// Connect establishes the MongoDB connection with otel instrumentation and
// verifies it with a ping. The caller owns the returned client and must
// disconnect it on shutdown.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	log.Info().Str("uri", uri).Msg("connecting to MongoDB")

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMonitor(otelmongo.NewMonitor())

	client, err := mongo.Connect(clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB primary: %w", err)
	}

	return client, nil
}

// Ping checks MongoDB liveness with a short timeout, used by health checks.
func Ping(ctx context.Context, client *mongo.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(pingCtx, readpref.Primary())
}
