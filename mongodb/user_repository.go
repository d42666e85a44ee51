package mongodb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/errors"
)

// UserRepository implements domain.UserRepository on MongoDB. The unique
// index on username is the serialization point for concurrent first-time
// bootstrap: at most one insert for a given username can succeed.
type UserRepository struct {
	users *mongo.Collection
}

// NewUserRepository creates the repository and ensures its indexes.
func NewUserRepository(ctx context.Context, db *mongo.Database) (*UserRepository, error) {
	repo := &UserRepository{
		users: db.Collection(UsersCollection),
	}
	if err := repo.createIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *UserRepository) createIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.users.Indexes().CreateMany(ctx, indexModels)
	if err != nil {
		// Creation is idempotent for compatible definitions; an options
		// conflict with a pre-existing index is a real error.
		log.Warn().Err(err).Msg("error creating indexes for users collection")
		return fmt.Errorf("failed to create indexes for users collection: %w", err)
	}
	return nil
}

// FindByUsername returns (nil, nil) when no user matches.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		log.Error().Err(err).Str("username", username).Msg("error getting user by username")
		return nil, err
	}
	return &user, nil
}

// FindByID returns (nil, nil) when no user matches.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		log.Error().Err(err).Str("id", id.String()).Msg("error getting user by id")
		return nil, err
	}
	return &user, nil
}

// Save inserts or replaces the user keyed by id. A username collision on
// insert surfaces as errors.ErrDuplicateUsername so the caller can fall back
// to the find path.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.ErrDuplicateUsername
		}
		log.Error().Err(err).Str("username", user.Username).Msg("error saving user")
		return nil, err
	}
	return user, nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
