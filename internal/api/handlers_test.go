package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"vidstream/internal/auth"
	"vidstream/internal/config"
	"vidstream/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testServer() *Server {
	return &Server{
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg: config.Config{
			CORSOrigins:     []string{"https://app.example.com"},
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 240 * time.Hour,
		},
		tokens: auth.NewTokenIssuer(auth.TokenConfig{
			AccessSecret:  "access-secret-for-tests",
			RefreshSecret: "refresh-secret-for-tests",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    240 * time.Hour,
		}),
	}
}

func TestFail_StatusMapping(t *testing.T) {
	s := testServer()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			"validation", fmt.Errorf("%w: password must be at least 8 characters", session.ErrValidation),
			http.StatusBadRequest, "validation_error", "password must be at least 8 characters",
		},
		{
			"unauthorized", fmt.Errorf("%w: invalid credentials", session.ErrUnauthorized),
			http.StatusUnauthorized, "unauthorized", "invalid credentials",
		},
		{
			"not found", fmt.Errorf("%w: channel not found", session.ErrNotFound),
			http.StatusNotFound, "not_found", "channel not found",
		},
		{
			"conflict", fmt.Errorf("%w: username or email already taken", session.ErrConflict),
			http.StatusConflict, "conflict", "username or email already taken",
		},
		{
			"upstream hides detail", fmt.Errorf("%w: account lookup: connection refused", session.ErrUpstream),
			http.StatusBadGateway, "upstream_error", "upstream dependency failed",
		},
		{
			"unknown hides detail", errors.New("slice index out of range"),
			http.StatusInternalServerError, "internal_error", "something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)

			s.fail(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, `"code":"`+tt.wantCode+`"`) {
				t.Errorf("expected code %q in body %s", tt.wantCode, body)
			}
			if !strings.Contains(body, tt.wantMessage) {
				t.Errorf("expected message %q in body %s", tt.wantMessage, body)
			}
		})
	}
}

// Internal detail wrapped with %v after the sentinel must never surface in the
// upstream or internal responses.
func TestFail_NeverLeaksInternalDetail(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	s.fail(c, fmt.Errorf("%w: query: pq: relation accounts does not exist", session.ErrUpstream))

	if strings.Contains(w.Body.String(), "relation") {
		t.Errorf("internal error detail leaked: %s", w.Body.String())
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		in   error
		want string
	}{
		{fmt.Errorf("%w: invalid credentials", session.ErrUnauthorized), "invalid credentials"},
		{errors.New("no prefix here"), "no prefix here"},
	}

	for _, tt := range tests {
		if got := publicMessage(tt.in); got != tt.want {
			t.Errorf("publicMessage(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBearerToken_HeaderWinsOverCookie(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"header only", "Bearer tok-from-header", "", "tok-from-header"},
		{"cookie only", "", "tok-from-cookie", "tok-from-cookie"},
		{"header wins", "Bearer tok-from-header", "tok-from-cookie", "tok-from-header"},
		{"malformed header falls back to cookie", "Basic dXNlcjpwdw==", "tok-from-cookie", "tok-from-cookie"},
		{"neither", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				c.Request.AddCookie(&http.Cookie{Name: "accessToken", Value: tt.cookie})
			}

			if got := bearerToken(c); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireSession_RejectsBadTokens(t *testing.T) {
	s := testServer()

	expiredIssuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret: "access-secret-for-tests",
		AccessTTL:    -time.Minute,
	})
	expired, err := expiredIssuer.IssueAccess(mustUUID("2a9a2cf9-7b0c-4a5e-9f3d-0d6de4c3a111"), "a@b.c", "a", "A")
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}

	router := gin.New()
	router.GET("/secured", s.requireSession(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	tests := []struct {
		name   string
		header string
	}{
		{"missing token", ""},
		{"garbage token", "Bearer not-a-jwt"},
		{"expired token", "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/secured", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), `"code":"unauthorized"`) {
				t.Errorf("expected unauthorized envelope, got %s", w.Body.String())
			}
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	s := testServer()

	router := gin.New()
	router.Use(s.corsMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{})
	})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("expected origin echoed, got %q", got)
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("expected credentials allowed, got %q", got)
		}
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS headers for unknown origin, got %q", got)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/ping", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("expected 204 for preflight, got %d", w.Code)
		}
	})
}

func TestTooManyRequests_SetsRetryAfter(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	s.tooManyRequests(c, 42)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("expected Retry-After 42, got %q", got)
	}
}

func TestSetAuthCookies(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/login", nil)

	s.setAuthCookies(c, "access-value", "refresh-value")

	res := w.Result()
	cookies := res.Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}

	byName := map[string]*http.Cookie{}
	for _, ck := range cookies {
		byName[ck.Name] = ck
	}

	access, ok := byName["accessToken"]
	if !ok {
		t.Fatal("missing accessToken cookie")
	}
	if access.Value != "access-value" {
		t.Errorf("accessToken value = %q", access.Value)
	}
	if !access.HttpOnly || !access.Secure {
		t.Error("auth cookies must be httpOnly and secure")
	}
	if access.MaxAge != int((15 * time.Minute).Seconds()) {
		t.Errorf("accessToken max-age = %d", access.MaxAge)
	}

	refresh, ok := byName["refreshToken"]
	if !ok {
		t.Fatal("missing refreshToken cookie")
	}
	if refresh.MaxAge != int((240 * time.Hour).Seconds()) {
		t.Errorf("refreshToken max-age = %d", refresh.MaxAge)
	}
}

func multipartContext(t *testing.T, field, filename string, content []byte) *gin.Context {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", "/", &body)
	c.Request.Header.Set("Content-Type", mw.FormDataContentType())
	return c
}

func TestSaveUpload(t *testing.T) {
	s := testServer()

	t.Run("missing field", func(t *testing.T) {
		c := multipartContext(t, "", "", nil)

		if _, err := s.saveUpload(c, "avatar"); !errors.Is(err, errNoUpload) {
			t.Errorf("expected errNoUpload, got %v", err)
		}
	})

	t.Run("spools to a temp file", func(t *testing.T) {
		c := multipartContext(t, "avatar", "avatar.png", []byte("png bytes"))

		path, err := s.saveUpload(c, "avatar")
		if err != nil {
			t.Fatalf("save upload: %v", err)
		}
		t.Cleanup(func() { os.Remove(path) })

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read spool file: %v", err)
		}
		if string(data) != "png bytes" {
			t.Errorf("spool content = %q", data)
		}
		if filepath.Ext(path) != ".png" {
			t.Errorf("expected original extension kept, got %q", path)
		}
	})

	t.Run("spool failure is upstream not validation", func(t *testing.T) {
		// a regular file where the temp dir should be makes the spool write fail
		blocker := filepath.Join(t.TempDir(), "blocker")
		if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
			t.Fatalf("write blocker: %v", err)
		}
		t.Setenv("TMPDIR", blocker)

		c := multipartContext(t, "avatar", "avatar.png", []byte("png bytes"))

		_, err := s.saveUpload(c, "avatar")
		if !errors.Is(err, session.ErrUpstream) {
			t.Errorf("expected ErrUpstream, got %v", err)
		}
		if errors.Is(err, errNoUpload) {
			t.Error("a present-but-unspoolable file must not read as missing")
		}
	})
}

func TestClearAuthCookies(t *testing.T) {
	s := testServer()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("POST", "/logout", nil)

	s.clearAuthCookies(c)

	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge >= 0 {
			t.Errorf("cookie %s not expired: max-age %d", ck.Name, ck.MaxAge)
		}
	}
}
