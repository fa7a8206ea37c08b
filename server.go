package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/records_backend/attachments"
	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/entities"
	"github.com/mmdatafocus/records_backend/lifecycle"
	"github.com/mmdatafocus/records_backend/middlewares"
	"github.com/mmdatafocus/records_backend/schema"
	"github.com/mmdatafocus/records_backend/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const defaultPort = "8080"

var tracer = otel.Tracer("records-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// services is everything that needs the database; it is published once the
// dependencies are connected.
type services struct {
	store       store.Store
	attachments *attachments.Manager
	controllers map[string]*lifecycle.Controller
	loaders     gin.HandlerFunc
}

var current atomic.Pointer[services]

func controllerFor(kind string) (*lifecycle.Controller, bool) {
	s := current.Load()
	if s == nil {
		return nil, false
	}
	ctrl, ok := s.controllers[kind]
	return ctrl, ok
}

func currentBlob() attachments.Blob {
	if s := current.Load(); s != nil {
		return s.attachments.Blob()
	}
	return nil
}

func buildServices(ctx context.Context, db *gorm.DB) (*services, error) {
	st := store.NewGormStore(db)
	blob, err := attachments.NewBlobFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	mgr := attachments.New(blob, attachments.Options{
		Prefix:     config.UploadPrefix(),
		Thumbnails: config.ThumbnailsEnabled(),
	})
	if err := config.EnsureEventTopic(ctx); err != nil {
		return nil, err
	}
	return assemble(st, mgr, lifecycle.NewPublisherFromEnv())
}

// assemble builds a controller for every registered entity.
func assemble(st store.Store, mgr *attachments.Manager, events lifecycle.Publisher) (*services, error) {
	options := lifecycle.OptionsFromStore(st, config.MaxPageSize())
	validate := validator.New()

	controllers := map[string]*lifecycle.Controller{}
	for _, e := range schema.All() {
		ctrl, err := lifecycle.New(e, entities.Configs[e.Kind], lifecycle.Deps{
			Store:       st,
			Attachments: mgr,
			Events:      events,
			Options:     middlewares.RequestOptions(options),
			Validate:    validate,
		})
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.Kind, err)
		}
		controllers[e.Kind] = ctrl
	}
	return &services{
		store:       st,
		attachments: mgr,
		controllers: controllers,
		loaders:     middlewares.LoaderMiddleware(st, options),
	}, nil
}

func migrateEntities(ctx context.Context, db *gorm.DB, logger *logrus.Logger) {
	for _, e := range schema.All() {
		if err := store.Migrate(ctx, db, e); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations", "entity": e.Kind}).Panic(err.Error())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func entitiesHandler(c *gin.Context) {
	kinds := make([]gin.H, 0)
	for _, e := range schema.All() {
		kinds = append(kinds, gin.H{"kind": e.Kind, "table": e.Table, "soft_delete": e.SoftDelete})
	}
	c.JSON(http.StatusOK, gin.H{"entities": kinds})
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; app endpoints return 503 until services are published,
	// which happens after DB and Redis are connected.
	r := newRouter(logger)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// DDL can block tables; SKIP_MIGRATIONS=true leaves it to cmd/migrate-entities.
	if !config.BoolFromEnv("SKIP_MIGRATIONS") {
		migrateEntities(sigCtx, db, logger)
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping entity migrations on startup")
	}

	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	svc, err := buildServices(sigCtx, db)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "services"}).Panic(err.Error())
	}
	current.Store(svc)

	logger.WithFields(logrus.Fields{
		"info":     "Connection Established",
		"entities": len(svc.controllers),
	}).Info("listening on :", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// newRouter mounts middleware and routes. Entity routes resolve their
// controller per request from the published services.
func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if current.Load() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if config.IsProduction() {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if config.BoolFromEnv("RATE_LIMIT_ENABLED") {
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(traceRequests())
	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.AuthMiddleware())
	r.Use(func(c *gin.Context) {
		if s := current.Load(); s != nil {
			s.loaders(c)
			return
		}
		c.Next()
	})
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	if config.IsProduction() || config.BoolFromEnv("REQUIRE_AUTH") {
		api.Use(middlewares.RequireIdentity())
	}
	api.GET("/entities", entitiesHandler)
	for _, e := range schema.All() {
		registerEntityRoutes(api, e.Kind, controllerFor)
	}
	r.GET("/files/*key", fileHandler(currentBlob))
	r.NoRoute(customNotFoundHandler)
	return r
}

// traceRequests opens one span per request, named after the matched route.
func traceRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+name,
			trace.WithAttributes(attribute.String("http.method", c.Request.Method)))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// NewRateLimiter counts requests per client IP in the shared Redis connection.
func NewRateLimiter(limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: config.GetRedisDB(),
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	client := rl.client
	if client == nil {
		// connected after the limiter was built
		client = config.GetRedisDB()
	}
	if client == nil {
		c.Next()
		return
	}
	key := "RateLimit:" + c.ClientIP()

	count, err := client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	if count == 1 {
		if err := client.Expire(c.Request.Context(), key, rl.window).Err(); err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
