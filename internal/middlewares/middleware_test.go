package middlewares

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DarshiBhavsar/chat-app-sub000/config"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/testutil"
	"github.com/DarshiBhavsar/chat-app-sub000/internal/utils"
	"github.com/DarshiBhavsar/chat-app-sub000/middleware/jwt"
	logger "github.com/DarshiBhavsar/chat-app-sub000/middleware/log"
	"github.com/DarshiBhavsar/chat-app-sub000/utils/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newManager(t *testing.T, cfg *config.RateLimitConfig) (*MiddlewareManager, *jwt.TokenManager) {
	t.Helper()
	rdb, _ := testutil.NewRedis(t)
	tokens := jwt.NewTokenManager("secret", 1)
	limiter := ratelimit.NewWindowLimiter(rdb, zap.NewNop(), true)
	if cfg == nil {
		cfg = &config.RateLimitConfig{}
	}
	return NewMiddlewareManager(tokens, limiter, logger.NewNop(), cfg), tokens
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	m, tokens := newManager(t, nil)
	r := gin.New()
	r.GET("/me", m.JWTAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "name": UserName(c)})
	})

	w := do(r, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = do(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, w.Body.String())

	token, err := tokens.GenerateToken(42, "alice", "alice@example.com")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = do(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":42,"name":"alice"}`, w.Body.String())
}

func TestRateLimiterByEndpoint(t *testing.T) {
	m, _ := newManager(t, &config.RateLimitConfig{LoginPerMinute: 2})
	r := gin.New()
	r.POST("/login", m.RateLimiterByEndpoint(ratelimit.EndpointLogin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for range 2 {
		w := do(r, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}
	w := do(r, httptest.NewRequest(http.MethodPost, "/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestLoggerPropagatesTraceID(t *testing.T) {
	m, _ := newManager(t, nil)
	r := gin.New()
	r.Use(m.Logger())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = logger.GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "trace-1")
	w := do(r, req)
	assert.Equal(t, "trace-1", seen)
	assert.Equal(t, "trace-1", w.Header().Get(TraceHeader))

	w = do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(TraceHeader))
}

func TestAsyncWithRecovery(t *testing.T) {
	m, _ := newManager(t, nil)
	pool := utils.NewWorkerPool(2, 8, zap.NewNop())
	pool.Start()
	t.Cleanup(pool.Stop)

	r := gin.New()
	r.Use(AsyncMiddleware(pool), m.Recovery())
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(r, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fine", w.Body.String())

	w = do(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAsyncWithoutPool(t *testing.T) {
	r := gin.New()
	r.Use(AsyncMiddleware(nil))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	assert.Equal(t, http.StatusAccepted, do(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestMaxConcurrency(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	r := gin.New()
	r.Use(MaxConcurrencyMiddleware(1))
	r.GET("/", func(c *gin.Context) {
		if c.Query("hold") != "" {
			close(entered)
			<-release
		}
		c.Status(http.StatusOK)
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		do(r, httptest.NewRequest(http.MethodGet, "/?hold=1", nil))
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first request never started")
	}
	assert.Equal(t, http.StatusServiceUnavailable, do(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}
