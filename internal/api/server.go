package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"vidstream/internal/auth"
	"vidstream/internal/config"
	"vidstream/internal/db"
	"vidstream/internal/redis"
	"vidstream/internal/security"
	"vidstream/internal/session"
	"vidstream/internal/storage"
	"vidstream/internal/store"
)

type Server struct {
	log      *slog.Logger
	db       *db.DB
	redis    *redis.Client
	cfg      config.Config
	router   *gin.Engine
	accounts *store.Accounts
	subs     *store.Subscriptions
	videos   *store.Videos
	sessions *session.Manager
	tokens   *auth.TokenIssuer
	hasher   *auth.PasswordHasher
	media    storage.MediaStore

	// in-process fallback when redis is unavailable
	loginLimiter *security.LimiterStore
}

func NewServer(log *slog.Logger, dbConn *db.DB, redisClient *redis.Client, media storage.MediaStore, cfg config.Config) *Server {
	accounts := store.NewAccounts(dbConn)
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})

	s := &Server{
		log:          log,
		db:           dbConn,
		redis:        redisClient,
		cfg:          cfg,
		router:       gin.New(),
		accounts:     accounts,
		subs:         store.NewSubscriptions(dbConn),
		videos:       store.NewVideos(dbConn),
		sessions:     session.NewManager(log, accounts, hasher, tokens),
		tokens:       tokens,
		hasher:       hasher,
		media:        media,
		loginLimiter: security.NewLimiterStore(1, 10, 10*time.Minute),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.rateLimitMiddleware())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		accountsGroup := v1.Group("/accounts")
		{
			accountsGroup.POST("/register", s.register)
			accountsGroup.POST("/login", s.login)
			accountsGroup.POST("/refresh", s.refresh)

			secured := accountsGroup.Group("")
			secured.Use(s.requireSession())
			{
				secured.POST("/logout", s.logout)
				secured.POST("/change-password", s.changePassword)
				secured.GET("/me", s.currentAccount)
				secured.PATCH("/me", s.updateProfile)
				secured.PATCH("/me/avatar", s.updateAvatar)
				secured.PATCH("/me/cover", s.updateCover)
				secured.GET("/me/history", s.watchHistory)
			}
		}

		channels := v1.Group("/channels")
		channels.Use(s.requireSession())
		{
			channels.GET("/:username", s.channelProfile)
			channels.POST("/:username/subscribe", s.subscribe)
			channels.DELETE("/:username/subscribe", s.unsubscribe)
		}

		videos := v1.Group("/videos")
		videos.Use(s.requireSession())
		{
			videos.POST("/:id/view", s.recordView)
		}
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}
