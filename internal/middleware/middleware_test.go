package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-ticketing/internal/config"
	"github.com/iliyamo/chat-ticketing/internal/utils"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func adminEcho(cfg AdminAuthConfig) *echo.Echo {
	e := echo.New()
	e.POST("/events", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Get(AdminSubjectKey).(string))
	}, AdminAuth(cfg))
	return e
}

func TestAdminAuthToken(t *testing.T) {
	hash, err := utils.HashSecret("hashed-token", 4)
	require.NoError(t, err)
	e := adminEcho(AdminAuthConfig{Token: "plain-token", TokenHash: hash})

	for tok, want := range map[string]int{"plain-token": 200, "hashed-token": 200, "wrong": 401} {
		req := httptest.NewRequest(http.MethodPost, "/events", nil)
		req.Header.Set("X-Admin-Token", tok)
		assert.Equal(t, want, serve(e, req).Code, tok)
	}

	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestAdminAuthBearer(t *testing.T) {
	e := adminEcho(AdminAuthConfig{JWTSecret: "jwt-secret"})

	admin, err := utils.NewAccessToken("jwt-secret", "ops@example.com", utils.RoleAdmin, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+admin.Token)
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", rec.Body.String())

	viewer, err := utils.NewAccessToken("jwt-secret", "someone", "VIEWER", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+viewer.Token)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

func TestAdminAuthPhoneAllowList(t *testing.T) {
	e := adminEcho(AdminAuthConfig{JWTSecret: "jwt-secret", Phones: []string{"5534999990000"}})

	tok, err := utils.NewAccessToken("jwt-secret", "5534999990000", "ORGANIZER", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	assert.Equal(t, http.StatusOK, serve(e, req).Code)

	other, err := utils.NewAccessToken("jwt-secret", "5534911112222", "ORGANIZER", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("Authorization", "Bearer "+other.Token)
	assert.Equal(t, http.StatusForbidden, serve(e, req).Code)
}

func TestAdminAuthUnconfiguredRejects(t *testing.T) {
	e := adminEcho(AdminAuthConfig{})
	req := httptest.NewRequest(http.MethodPost, "/events", nil)
	req.Header.Set("X-Admin-Token", "")
	req.Header.Set("Authorization", "Bearer x")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)
}

type fakeBucket struct {
	allowed   bool
	remaining int64
	retryMs   int64
	err       error
	keys      []string
}

func (f *fakeBucket) take(_ context.Context, key string) (bool, int64, int64, error) {
	f.keys = append(f.keys, key)
	return f.allowed, f.remaining, f.retryMs, f.err
}

func rateEcho(b bucket) *echo.Echo {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 5, KeyStrategy: "ip_route", Prefix: "rl"}
	e := echo.New()
	e.GET("/validate", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, tokenBucket(cfg, b))
	return e
}

func TestTokenBucketAllows(t *testing.T) {
	b := &fakeBucket{allowed: true, remaining: 4}
	req := httptest.NewRequest(http.MethodGet, "/validate?c=abc", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	rec := serve(rateEcho(b), req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"rl:ip:10.0.0.1:route:GET /validate"}, b.keys)
}

func TestTokenBucketBlocks(t *testing.T) {
	b := &fakeBucket{allowed: false, retryMs: 1500}
	rec := serve(rateEcho(b), httptest.NewRequest(http.MethodGet, "/validate", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestTokenBucketFailsOpen(t *testing.T) {
	b := &fakeBucket{err: errors.New("redis down")}
	rec := serve(rateEcho(b), httptest.NewRequest(http.MethodGet, "/validate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewTokenBucketWithoutRedisIsPassThrough(t *testing.T) {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil))
	assert.Equal(t, http.StatusNoContent, serve(e, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func cacheCfg() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          30 * time.Second,
		KeyStrategy:  "route_query",
		Prefix:       "cache:events",
		MaxBodyBytes: 1 << 20,
	}
}

func TestRedisCacheMissThenHit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheCfg()
	body := []byte(`{"events":[]}`)
	calls := 0

	e := echo.New()
	e.GET("/events", func(c echo.Context) error {
		calls++
		return c.Blob(http.StatusOK, "application/json", body)
	}, NewRedisCache(cfg, db))

	key := CacheKey(cfg.Prefix, cfg.KeyStrategy, http.MethodGet, "/events", "city=uberaba")
	stored, err := encodePayload(http.StatusOK, http.Header{
		"Content-Type": {"application/json"},
		"X-Cache":      {"MISS"},
	}, body)
	require.NoError(t, err)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSetEx(key, stored, cfg.TTL).SetVal("OK")
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events?city=uberaba", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	mock.ExpectGet(key).SetVal(string(stored))
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/events?city=uberaba", nil))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, string(body), rec.Body.String())

	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheSkipsErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cfg := cacheCfg()
	e := echo.New()
	e.GET("/events/:id", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false})
	}, NewRedisCache(cfg, db))

	mock.ExpectGet(CacheKey(cfg.Prefix, cfg.KeyStrategy, http.MethodGet, "/events/:id", "")).RedisNil()
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/events/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheKeyStrategies(t *testing.T) {
	a := CacheKey("p", "route", "GET", "/events", "a=1")
	b := CacheKey("p", "route", "GET", "/events", "a=2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, CacheKey("p", "route_query", "GET", "/events", "a=1"), CacheKey("p", "route_query", "GET", "/events", "a=2"))
	assert.Contains(t, a, "p:")
}

func TestPurgeCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectScan(0, "cache:events:*", 100).SetVal([]string{"cache:events:a", "cache:events:b"}, 7)
	mock.ExpectDel("cache:events:a", "cache:events:b").SetVal(2)
	mock.ExpectScan(7, "cache:events:*", 100).SetVal(nil, 0)

	require.NoError(t, PurgeCache(context.Background(), db, "cache:events"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, PurgeCache(context.Background(), nil, "cache:events"))
}

func TestPayloadRoundTrip(t *testing.T) {
	bs, err := encodePayload(201, http.Header{"A": {"1"}}, []byte("body"))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 201, status)
	assert.Equal(t, "1", hdr.Get("A"))
	assert.Equal(t, "body", string(body))

	_, _, _, ok = decodePayload([]byte{1, 2})
	assert.False(t, ok)
}
