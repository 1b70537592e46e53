package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"vidstream/internal/models"
	"vidstream/internal/session"
	"vidstream/internal/storage"
)

const channelCacheTTL = 60 * time.Second

func (s *Server) register(c *gin.Context) {
	fullName := strings.TrimSpace(c.PostForm("fullName"))
	email := strings.ToLower(strings.TrimSpace(c.PostForm("email")))
	username := strings.ToLower(strings.TrimSpace(c.PostForm("username")))
	password := c.PostForm("password")

	if fullName == "" || email == "" || username == "" || password == "" {
		s.fail(c, fmt.Errorf("%w: fullName, email, username and password are required", session.ErrValidation))
		return
	}
	if !strings.Contains(email, "@") {
		s.fail(c, fmt.Errorf("%w: invalid email", session.ErrValidation))
		return
	}
	if len(password) < 8 {
		s.fail(c, fmt.Errorf("%w: password must be at least 8 characters", session.ErrValidation))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	taken, err := s.accounts.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: conflict check: %v", session.ErrUpstream, err))
		return
	}
	if taken {
		s.fail(c, fmt.Errorf("%w: username or email already taken", session.ErrConflict))
		return
	}

	// avatar is required; its upload failing aborts the whole registration
	// before any row is written
	avatarPath, err := s.saveUpload(c, "avatar")
	if errors.Is(err, errNoUpload) {
		s.fail(c, fmt.Errorf("%w: avatar image is required", session.ErrValidation))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	avatar, err := s.media.Upload(ctx, avatarPath)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: avatar upload: %v", session.ErrUpstream, err))
		return
	}

	// cover is optional: a failed spool or upload degrades to no cover
	var cover storage.UploadResult
	if coverPath, err := s.saveUpload(c, "coverImage"); err == nil {
		if res, err := s.media.Upload(ctx, coverPath); err != nil {
			s.log.Warn("cover_upload_failed", "username", username, "error", err)
		} else {
			cover = *res
		}
	} else if !errors.Is(err, errNoUpload) {
		s.log.Warn("cover_spool_failed", "username", username, "error", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.discardUploads(ctx, avatar.Key, cover.Key)
		s.fail(c, fmt.Errorf("%w: hashing password: %v", session.ErrUpstream, err))
		return
	}

	created, err := s.accounts.Create(ctx, &models.Account{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		AvatarURL:    avatar.URL,
		AvatarKey:    avatar.Key,
		CoverURL:     cover.URL,
		CoverKey:     cover.Key,
	})
	if err != nil {
		// lost a race with a concurrent registration; drop the orphaned uploads
		s.discardUploads(ctx, avatar.Key, cover.Key)
		s.fail(c, err)
		return
	}

	s.log.Info("account_registered", "account_id", created.ID, "username", created.Username)
	c.JSON(http.StatusCreated, created.Projection())
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: invalid request body", session.ErrValidation))
		return
	}

	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	res, err := s.sessions.Login(ctx, identifier, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.setAuthCookies(c, res.AccessToken, res.RefreshToken)
	c.JSON(http.StatusOK, res)
}

func (s *Server) refresh(c *gin.Context) {
	incoming, _ := c.Cookie("refreshToken")
	if incoming == "" {
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			incoming = req.RefreshToken
		}
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	pair, err := s.sessions.Refresh(ctx, incoming)
	if err != nil {
		s.fail(c, err)
		return
	}

	s.setAuthCookies(c, pair.AccessToken, pair.RefreshToken)
	c.JSON(http.StatusOK, pair)
}

func (s *Server) logout(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.sessions.Logout(ctx, acct.ID); err != nil {
		s.fail(c, err)
		return
	}

	s.clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) changePassword(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: invalid request body", session.ErrValidation))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.sessions.ChangePassword(ctx, acct.ID, req.OldPassword, req.NewPassword); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) currentAccount(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) updateProfile(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: invalid request body", session.ErrValidation))
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if fullName == "" || email == "" {
		s.fail(c, fmt.Errorf("%w: full_name and email are required", session.ErrValidation))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	updated, err := s.accounts.UpdateProfile(ctx, acct.ID, fullName, email)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, updated.Projection())
}

func (s *Server) updateAvatar(c *gin.Context) {
	s.updateImage(c, "avatar")
}

func (s *Server) updateCover(c *gin.Context) {
	s.updateImage(c, "coverImage")
}

func (s *Server) updateImage(c *gin.Context, field string) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	path, err := s.saveUpload(c, field)
	if errors.Is(err, errNoUpload) {
		s.fail(c, fmt.Errorf("%w: %s image file is required", session.ErrValidation, field))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	res, err := s.media.Upload(ctx, path)
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %s upload: %v", session.ErrUpstream, field, err))
		return
	}

	var updated *models.Account
	var oldKey string
	if field == "avatar" {
		updated, oldKey, err = s.accounts.UpdateAvatar(ctx, acct.ID, res.URL, res.Key)
	} else {
		updated, oldKey, err = s.accounts.UpdateCover(ctx, acct.ID, res.URL, res.Key)
	}
	if err != nil {
		s.discardUploads(ctx, res.Key)
		s.fail(c, err)
		return
	}

	// the replaced object is garbage now; deletion is best-effort
	s.discardUploads(ctx, oldKey)

	c.JSON(http.StatusOK, updated.Projection())
}

func (s *Server) channelProfile(c *gin.Context) {
	viewer, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	username := strings.ToLower(strings.TrimSpace(c.Param("username")))
	if username == "" {
		s.fail(c, fmt.Errorf("%w: username is required", session.ErrValidation))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	cacheKey := fmt.Sprintf("channel_profile:%s:%s", username, viewer.ID)
	if cached, err := s.redis.Get(ctx, cacheKey); err == nil && cached != "" {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
		return
	}

	var p models.ChannelProfile
	err := s.db.Pool.QueryRow(ctx, channelProfileQuery, username, viewer.ID).Scan(
		&p.ID, &p.Username, &p.Email, &p.FullName, &p.AvatarURL, &p.CoverURL, &p.CreatedAt,
		&p.SubscribersCount, &p.ChannelsSubscribedToCount, &p.IsSubscribed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		s.fail(c, fmt.Errorf("%w: channel not found", session.ErrNotFound))
		return
	}
	if err != nil {
		s.fail(c, fmt.Errorf("%w: channel profile query: %v", session.ErrUpstream, err))
		return
	}

	if body, err := json.Marshal(p); err == nil {
		s.redis.Set(ctx, cacheKey, string(body), channelCacheTTL)
	}

	c.JSON(http.StatusOK, p)
}

func (s *Server) watchHistory(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	var historyJSON []byte
	err := s.db.Pool.QueryRow(ctx, watchHistoryQuery, acct.ID).Scan(&historyJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		s.fail(c, fmt.Errorf("%w: account not found", session.ErrNotFound))
		return
	}
	if err != nil {
		s.fail(c, fmt.Errorf("%w: watch history query: %v", session.ErrUpstream, err))
		return
	}

	var history []models.WatchHistoryEntry
	if err := json.Unmarshal(historyJSON, &history); err != nil {
		s.fail(c, fmt.Errorf("%w: decoding watch history: %v", session.ErrUpstream, err))
		return
	}
	if history == nil {
		history = []models.WatchHistoryEntry{}
	}

	c.JSON(http.StatusOK, history)
}

func (s *Server) subscribe(c *gin.Context) {
	s.mutateSubscription(c, true)
}

func (s *Server) unsubscribe(c *gin.Context) {
	s.mutateSubscription(c, false)
}

func (s *Server) mutateSubscription(c *gin.Context, add bool) {
	viewer, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	username := strings.ToLower(strings.TrimSpace(c.Param("username")))

	ctx, cancel := s.ctx(c)
	defer cancel()

	channel, err := s.accounts.FindByUsername(ctx, username)
	if errors.Is(err, session.ErrNotFound) {
		s.fail(c, fmt.Errorf("%w: channel not found", session.ErrNotFound))
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	if add {
		err = s.subs.Subscribe(ctx, viewer.ID, channel.ID)
	} else {
		err = s.subs.Unsubscribe(ctx, viewer.ID, channel.ID)
	}
	if err != nil {
		s.fail(c, err)
		return
	}

	// the edge changed two profiles: the channel's subscriber count and the
	// viewer's subscribed-to count
	s.invalidateChannelProfiles(ctx, username, viewer.Username)

	c.JSON(http.StatusOK, gin.H{})
}

// invalidateChannelProfiles drops every cached profile of the named channels,
// across all viewers.
func (s *Server) invalidateChannelProfiles(ctx context.Context, usernames ...string) {
	for _, u := range usernames {
		if err := s.redis.DelPattern(ctx, "channel_profile:"+u+":*"); err != nil {
			s.log.Warn("channel_cache_invalidate_failed", "channel", u, "error", err)
		}
	}
}

func (s *Server) recordView(c *gin.Context) {
	acct, ok := currentAccount(c)
	if !ok {
		s.unauthorized(c, "missing session")
		return
	}

	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.fail(c, fmt.Errorf("%w: invalid video id", session.ErrValidation))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.videos.CountView(ctx, videoID); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.accounts.RecordView(ctx, acct.ID, videoID); err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	dbStatus := "connected"
	if err := s.db.Pool.Ping(ctx); err != nil {
		dbStatus = "unreachable"
	}
	redisStatus := "connected"
	if err := s.redis.Ping(ctx); err != nil {
		redisStatus = "unreachable"
	}

	status := http.StatusOK
	overall := "healthy"
	if dbStatus != "connected" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbStatus,
		"redis":    redisStatus,
	})
}

// errNoUpload reports that the multipart field was not sent at all. A field
// that is present but fails to spool is an upstream error, not the client's.
var errNoUpload = errors.New("no upload")

// saveUpload copies the named multipart file into a temp path for the media
// store to consume.
func (s *Server) saveUpload(c *gin.Context, field string) (string, error) {
	file, err := c.FormFile(field)
	if err != nil {
		return "", errNoUpload
	}

	dst := filepath.Join(os.TempDir(), "upload_"+uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		return "", fmt.Errorf("%w: spooling %s upload: %v", session.ErrUpstream, field, err)
	}
	return dst, nil
}

func (s *Server) discardUploads(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.media.Delete(ctx, key); err != nil {
			s.log.Warn("media_delete_failed", "key", key, "error", err)
		}
	}
}

func (s *Server) setAuthCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("accessToken", access, int(s.cfg.AccessTokenTTL.Seconds()), "/", "", true, true)
	c.SetCookie("refreshToken", refresh, int(s.cfg.RefreshTokenTTL.Seconds()), "/", "", true, true)
}

func (s *Server) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("accessToken", "", -1, "/", "", true, true)
	c.SetCookie("refreshToken", "", -1, "/", "", true, true)
}

// fail maps the session error taxonomy onto HTTP statuses. Upstream and
// unknown failures hide their detail behind a generic message.
func (s *Server) fail(c *gin.Context, err error) {
	var status int
	var code string
	message := publicMessage(err)

	switch {
	case errors.Is(err, session.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, session.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, session.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, session.ErrUpstream):
		s.log.Error("upstream_failure", "error", err)
		status, code, message = http.StatusBadGateway, "upstream_error", "upstream dependency failed"
	default:
		s.log.Error("internal_error", "error", err)
		status, code, message = http.StatusInternalServerError, "internal_error", "something went wrong"
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
	c.Abort()
}

// publicMessage strips the taxonomy prefix: "unauthorized: invalid
// credentials" reads as "invalid credentials" at the boundary.
func publicMessage(err error) string {
	m := err.Error()
	if i := strings.Index(m, ": "); i >= 0 {
		return m[i+2:]
	}
	return m
}

func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
