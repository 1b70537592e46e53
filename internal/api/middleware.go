package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"vidstream/internal/auth"
	"vidstream/internal/logging"
	"vidstream/internal/models"
	"vidstream/internal/session"
)

const ctxAccountKey = "account"

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range s.cfg.CORSOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()

		s.log.Info("http_request",
			"method", method,
			"path", path,
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", clientIP,
		)
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		path := c.Request.URL.Path

		// credential endpoints get a tighter budget
		var limit int64 = 120 // default: 120 req/min
		window := 1 * time.Minute
		if strings.HasSuffix(path, "/login") || strings.HasSuffix(path, "/refresh") || strings.HasSuffix(path, "/register") {
			limit = 15
		}

		// sliding window over a redis sorted set
		now := time.Now().UnixNano()
		windowNanos := window.Nanoseconds()
		key := fmt.Sprintf("ratelimit:sw:%s:%s", clientIP, path)

		ctx := c.Request.Context()

		oldest := now - windowNanos
		_ = s.redis.RDB().ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", oldest)).Err()

		count, err := s.redis.RDB().ZCard(ctx, key).Result()
		if err != nil {
			// redis is down: fall back to the in-process limiter so the
			// credential endpoints are never left wide open
			if !s.loginLimiter.Allow(clientIP) {
				s.tooManyRequests(c, int64(window.Seconds()))
				return
			}
			c.Next()
			return
		}

		if count >= limit {
			oldestReq, _ := s.redis.RDB().ZRangeWithScores(ctx, key, 0, 0).Result()
			retryAfter := int64(window.Seconds())
			if len(oldestReq) > 0 {
				retryAfter = (windowNanos - (now - int64(oldestReq[0].Score))) / int64(time.Second)
				if retryAfter < 0 {
					retryAfter = 0
				}
			}
			s.tooManyRequests(c, retryAfter)
			return
		}

		_ = s.redis.RDB().ZAdd(ctx, key, goredis.Z{
			Score:  float64(now),
			Member: fmt.Sprintf("%d", now),
		}).Err()
		_ = s.redis.RDB().Expire(ctx, key, window).Err()

		c.Next()
	}
}

func (s *Server) tooManyRequests(c *gin.Context, retryAfter int64) {
	c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error": gin.H{
			"code":    "rate_limited",
			"message": "too many requests",
		},
	})
	c.Abort()
}

// requireSession verifies the bearer access token and loads the account into
// the request context. The Authorization header wins over the accessToken
// cookie when both are present.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			s.unauthorized(c, "missing access token")
			return
		}

		claims, err := s.tokens.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				s.log.Info("session_token_expired", "token", logging.MaskToken(token))
			} else {
				s.log.Info("session_token_invalid", "token", logging.MaskToken(token))
			}
			s.unauthorized(c, "invalid access token")
			return
		}

		ctx, cancel := s.ctx(c)
		defer cancel()

		acct, err := s.accounts.FindByID(ctx, mustUUID(claims.ID))
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				s.log.Error("session_account_load_failed", "error", err)
			}
			s.unauthorized(c, "invalid access token")
			return
		}

		c.Set(ctxAccountKey, acct.Projection())
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie("accessToken"); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}

func (s *Server) unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "unauthorized",
			"message": msg,
		},
	})
	c.Abort()
}

func currentAccount(c *gin.Context) (models.AccountProjection, bool) {
	v, ok := c.Get(ctxAccountKey)
	if !ok {
		return models.AccountProjection{}, false
	}
	acct, ok := v.(models.AccountProjection)
	return acct, ok
}
