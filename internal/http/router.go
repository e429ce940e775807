// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, authentication, idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-lingo-backend/docs" // registers the OpenAPI document
	"github.com/tbourn/go-lingo-backend/internal/auth"
	"github.com/tbourn/go-lingo-backend/internal/config"
	"github.com/tbourn/go-lingo-backend/internal/domain"
	"github.com/tbourn/go-lingo-backend/internal/http/handlers"
	"github.com/tbourn/go-lingo-backend/internal/http/middleware"
	"github.com/tbourn/go-lingo-backend/internal/repo"
	"github.com/tbourn/go-lingo-backend/internal/services"
	"github.com/tbourn/go-lingo-backend/internal/streamchat"
)

// userRepoShim adapts the repo free functions to services.UserRepo.
type userRepoShim struct{}

func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	return repo.CreateUser(ctx, db, u)
}

func (userRepoShim) GetUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUserByID(ctx, db, id)
}

func (userRepoShim) GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.GetUserByEmail(ctx, db, email)
}

func (userRepoShim) UserExists(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.UserExists(ctx, db, id)
}

func (userRepoShim) UpdateProfile(ctx context.Context, db *gorm.DB, id string, p repo.ProfileUpdate) error {
	return repo.UpdateProfile(ctx, db, id, p)
}

func (userRepoShim) AddMutualFriendship(ctx context.Context, db *gorm.DB, a, b string) error {
	return repo.AddMutualFriendship(ctx, db, a, b)
}

func (userRepoShim) AreFriends(ctx context.Context, db *gorm.DB, a, b string) (bool, error) {
	return repo.AreFriends(ctx, db, a, b)
}

func (userRepoShim) ListFriendIDs(ctx context.Context, db *gorm.DB, userID string) ([]string, error) {
	return repo.ListFriendIDs(ctx, db, userID)
}

func (userRepoShim) ListFriends(ctx context.Context, db *gorm.DB, userID string) ([]domain.User, error) {
	return repo.ListFriends(ctx, db, userID)
}

func (userRepoShim) ListRecommended(ctx context.Context, db *gorm.DB, userID string, exclude []string) ([]domain.User, error) {
	return repo.ListRecommended(ctx, db, userID, exclude)
}

// requestRepoShim adapts the repo free functions to services.FriendRequestRepo.
type requestRepoShim struct{}

func (requestRepoShim) CreateFriendRequest(ctx context.Context, db *gorm.DB, senderID, recipientID string) (*domain.FriendRequest, error) {
	return repo.CreateFriendRequest(ctx, db, senderID, recipientID)
}

func (requestRepoShim) GetFriendRequest(ctx context.Context, db *gorm.DB, id string) (*domain.FriendRequest, error) {
	return repo.GetFriendRequest(ctx, db, id)
}

func (requestRepoShim) FindFriendRequestBetween(ctx context.Context, db *gorm.DB, a, b string) (*domain.FriendRequest, error) {
	return repo.FindFriendRequestBetween(ctx, db, a, b)
}

func (requestRepoShim) MarkFriendRequestAccepted(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	return repo.MarkFriendRequestAccepted(ctx, db, id)
}

func (requestRepoShim) ListIncomingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListIncomingRequests(ctx, db, userID)
}

func (requestRepoShim) ListOutgoingRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListOutgoingRequests(ctx, db, userID)
}

func (requestRepoShim) ListSentAcceptedRequests(ctx context.Context, db *gorm.DB, userID string) ([]domain.FriendRequest, error) {
	return repo.ListSentAcceptedRequests(ctx, db, userID)
}

// Deps are the process-level collaborators built by the server command.
type Deps struct {
	// Chat defaults to the no-op provider.
	Chat streamchat.Provider
	// Redis backs the rate limiter when RATE_LIMIT_BACKEND=redis.
	Redis redis.Cmdable
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Request logging (redacting outside debug mode)
//  4. Recovery: capture panics after logger
//  5. Body size limiter, gzip
//  6. Metrics
//  7. CORS and security headers
//
// Protected groups then run RequireAuth, the idempotency validator and the
// rate limiter, in that order, so limits are keyed by user and replays are
// never throttled.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config, deps Deps) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	if cfg.GinMode == gin.DebugMode {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-Stream-Key"},
			MaskQuery:   []string{"token"},
		}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services <- repo/db/chat provider
	chat := deps.Chat
	if chat == nil {
		chat = streamchat.Noop{}
	}
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	accounts := services.NewAccountService(db, userRepoShim{}, chat)
	h := handlers.New(
		accounts,
		services.NewFriendshipService(db, userRepoShim{}, requestRepoShim{}),
		services.NewDirectoryService(db, userRepoShim{}),
		tokens,
		handlers.Options{
			DB:             db,
			Cookie:         handlers.CookieOptions{Name: cfg.Auth.CookieName, Secure: cfg.Auth.CookieSecure},
			IdempotencyTTL: cfg.IdempotencyTTL,
		},
	)

	requireAuth := middleware.RequireAuth(middleware.AuthOptions{
		CookieName: cfg.Auth.CookieName,
		Verifier:   tokens,
		Exists: func(ctx context.Context, userID string) (bool, error) {
			return repo.UserExists(ctx, db, userID)
		},
	})
	idempotency := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if errors.Is(err, repo.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
	)
	rateLimit := middleware.RateLimit(newLimiter(cfg, deps.Redis), middleware.KeyByUserOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", rateLimit, h.Signup)
		authGroup.POST("/login", rateLimit, h.Login)
		authGroup.POST("/logout", h.Logout)
		authGroup.POST("/onboard", requireAuth, rateLimit, h.Onboard)
		authGroup.GET("/me", requireAuth, h.Me)
	}

	users := api.Group("/users", requireAuth, idempotency, rateLimit)
	{
		users.GET("", h.RecommendedUsers)
		users.GET("/", h.RecommendedUsers)
		users.GET("/friends", h.MyFriends)
		users.POST("/friend-request/:id", h.SendFriendRequest)
		users.PUT("/friend-request/:id/accept", h.AcceptFriendRequest)
		users.GET("/friend-requests", h.FriendRequests)
		users.GET("/outgoing-friend-requests", h.OutgoingFriendRequests)
	}

	chatGroup := api.Group("/chat", requireAuth, rateLimit)
	{
		chatGroup.GET("/token", h.ChatToken)
	}
}

// newLimiter picks the rate-limit backend. The Redis limiter counts a fixed
// one-second window of RateBurst requests; the in-memory one is a token bucket.
func newLimiter(cfg config.Config, rdb redis.Cmdable) middleware.Limiter {
	if cfg.RateBackend == "redis" && rdb != nil {
		return middleware.NewRedisLimiter(rdb, cfg.RateBurst, time.Second)
	}
	return middleware.NewMemoryLimiter(cfg.RateRPS, cfg.RateBurst)
}

// corsMiddleware allows any origin without credentials when no allowlist is
// configured; with an allowlist, the session cookie may be sent cross-origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
		c.AllowCredentials = true
	}
	return cors.New(c)
}

// limitBody caps request bodies at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
