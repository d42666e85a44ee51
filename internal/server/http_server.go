package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	gatewayapi "github.com/rasterlab/edlgate/api/echo"
	"github.com/rasterlab/edlgate/config"
	"github.com/rasterlab/edlgate/log"
	"github.com/rasterlab/edlgate/middleware"
	"github.com/rasterlab/edlgate/services"
	"github.com/rasterlab/edlgate/session"
)

// NewHTTPServer assembles the echo router: public gateway routes, the
// authenticated /api group with bearer auth and user bootstrap, request
// logging, recovery and otel middleware.
func NewHTTPServer(
	cfg *config.GatewayConfig,
	appLogger log.Logger,
	gatewayAPI *gatewayapi.GatewayAPI,
	userAPI *gatewayapi.UserAPI,
	sessions *session.Manager,
	enricher *services.BearerEnricher,
	bootstrap *services.IdentityBootstrap,
) *http.Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.OtelServiceName))
	e.Use(requestLogger(appLogger))

	gatewayAPI.RegisterRoutes(e)

	api := e.Group("/api",
		middleware.BearerAuth(enricher),
		middleware.UserBootstrap(sessions, bootstrap),
	)
	userAPI.RegisterRoutes(api)

	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      e,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := map[string]interface{}{
				"method":     c.Request().Method,
				"path":       c.Request().URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": c.Request().UserAgent(),
			}
			if err != nil {
				appLogger.Error(c.Request().Context(), "http request failed", err, fields)
			} else {
				appLogger.Info(c.Request().Context(), "http request", fields)
			}

			return err
		}
	}
}
