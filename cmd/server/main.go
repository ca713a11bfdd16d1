// Package main runs the live session HTTP server with WebSocket presence and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/heritagehub/backend/config"
	"github.com/heritagehub/backend/internal/auth"
	"github.com/heritagehub/backend/internal/catalog"
	"github.com/heritagehub/backend/internal/middleware"
	"github.com/heritagehub/backend/internal/notifications"
	"github.com/heritagehub/backend/internal/realtime"
	"github.com/heritagehub/backend/internal/sessions"
	"github.com/heritagehub/backend/pkg/database"
	"github.com/heritagehub/backend/pkg/queue"
	"github.com/heritagehub/backend/pkg/redis"
	"github.com/heritagehub/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	var resolver catalog.Resolver = catalog.NoopResolver{}
	if cfg.Catalog.BaseURL != "" {
		resolver = catalog.NewHTTPResolver(cfg.Catalog.BaseURL,
			time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second, logger)
	}

	store := sessions.NewPostgresStore(pool)
	sessionService := sessions.NewService(store, resolver, jobQueue, hub, logger)
	sessionHandler := sessions.NewHandler(sessionService, logger)

	// WebSocket presence drives attendance: first connection marks the
	// participant joined, last disconnect marks them left.
	hub.SetPresenceHandlers(
		func(sessionID, userID uuid.UUID) {
			if err := sessionService.MarkJoined(context.Background(), sessionID, userID); err != nil {
				logger.Debug("mark joined skipped", zap.Error(err), zap.String("session_id", sessionID.String()))
			}
		},
		func(sessionID, userID uuid.UUID) {
			if err := sessionService.MarkLeft(context.Background(), sessionID, userID); err != nil {
				logger.Debug("mark left skipped", zap.Error(err), zap.String("session_id", sessionID.String()))
			}
		},
	)

	notifRepo := notifications.NewRepository(pool)
	notifHandler := notifications.NewHandler(notifRepo)

	wsValidate := func(token string) (uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", err
		}
		return claims.UserID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public browsing
	router.GET("/sessions", sessionHandler.List)
	router.GET("/sessions/:id", sessionHandler.GetByID)

	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/sessions", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.Create)
		api.POST("/sessions/:id/register", sessionHandler.Register)
		api.DELETE("/sessions/:id/register", sessionHandler.Unregister)
		api.POST("/sessions/:id/start", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.Start)
		api.POST("/sessions/:id/end", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.End)
		api.POST("/sessions/:id/cancel", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.Cancel)
		api.DELETE("/sessions/:id", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.Delete)
		api.POST("/sessions/:id/feedback", sessionHandler.SubmitFeedback)
		api.GET("/sessions/:id/attendance", middleware.RequireRole(sessions.RoleInstructor, sessions.RoleAdmin), sessionHandler.Attendance)
		api.GET("/sessions/:id/audience", sessionHandler.Audience(hub))

		api.GET("/notifications", notifHandler.List)
		api.PATCH("/notifications/:id/read", notifHandler.MarkRead)
	}

	// WebSocket handshake carries the token as a query param, not a header.
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
