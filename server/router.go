// Package server exposes the archive manager over an authenticated admin HTTP API.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ebogdum/archivefs/auth"
	"github.com/ebogdum/archivefs/config"
	"github.com/ebogdum/archivefs/core"
	"github.com/ebogdum/archivefs/metrics"
	"github.com/ebogdum/archivefs/server/handlers"
	authMiddleware "github.com/ebogdum/archivefs/server/middleware"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	manager *core.ArchiveManager,
	authenticator auth.Authenticator,
	authorizer auth.Authorizer,
	serverConfig *config.ServerConfig,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(authMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(authMiddleware.V1SecurityHeaders())

	// Custom logging and metrics middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			// Label by route pattern so handles and paths do not explode cardinality
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
				zap.String("request_id", authMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	// Health check endpoint (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.SendJSONResponse(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"open_handles": len(manager.OpenHandles()),
		})
	})

	// Metrics endpoint (no auth required)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes with authentication
	r.Route("/v1", func(r chi.Router) {
		if serverConfig != nil && serverConfig.RateLimit > 0 {
			limiter := authMiddleware.NewClientLimiter(serverConfig.RateLimit, serverConfig.RateBurst, 10*time.Minute)
			r.Use(authMiddleware.V1RateLimitMiddleware(limiter, logger))
		}
		r.Use(authMiddleware.V1AuthMiddleware(authenticator, logger))
		r.Use(authMiddleware.V1RequirePermission(authorizer, logger))

		r.Route("/archives", func(r chi.Router) {
			r.Post("/", handlers.V1OpenArchive(manager, logger))
			r.Get("/", handlers.V1ListArchives(manager))

			r.Route("/{handle}", func(r chi.Router) {
				r.Delete("/", handlers.V1CloseArchive(manager, logger))
				r.Get("/free", handlers.V1FreeBytes(manager, logger))

				r.Get("/files/*", handlers.V1GetFile(manager, logger))
				r.Put("/files/*", handlers.V1PutFile(manager, logger))
				r.Post("/files/*", handlers.V1PostFile(manager, logger))
				r.Delete("/files/*", handlers.V1DeleteFile(manager, logger))

				r.Get("/directories/*", handlers.V1ListDirectory(manager, logger))
				r.Post("/directories/*", handlers.V1CreateDirectory(manager, logger))
				r.Delete("/directories/*", handlers.V1DeleteDirectory(manager, logger))
			})
		})

		r.Post("/rename", handlers.V1Rename(manager, logger))
		r.Post("/format", handlers.V1Format(manager, logger))
		r.Get("/formatinfo", handlers.V1FormatInfo(manager, logger))

		r.Post("/extdata", handlers.V1CreateExtSaveData(manager, logger))
		r.Delete("/extdata", handlers.V1DeleteExtSaveData(manager, logger))
		r.Post("/sysdata", handlers.V1CreateSystemSaveData(manager, logger))
		r.Delete("/sysdata", handlers.V1DeleteSystemSaveData(manager, logger))
	})

	logger.Info("HTTP router configured successfully")

	return r
}
