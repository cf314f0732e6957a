package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/profitharness/internal/crypto"
)

var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_, _ = w.Write(body)
})

func TestAuthBearerAndKey(t *testing.T) {
	h := Auth("k", nil, "/api/health")(echo)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"public", "/api/health", nil, http.StatusOK},
		{"missing", "/api/venues", nil, http.StatusUnauthorized},
		{"bearer", "/api/venues", map[string]string{"Authorization": "Bearer k"}, http.StatusOK},
		{"api key", "/api/venues", map[string]string{"X-API-Key": "k"}, http.StatusOK},
		{"wrong", "/api/venues", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthHMAC(t *testing.T) {
	signer := &crypto.RequestAuth{Secret: "s3cret", MaxSkew: time.Minute}
	h := Auth("", signer)(echo)
	body := `{"index":0,"active":false}`

	req := httptest.NewRequest(http.MethodPost, "/api/venues/0/active", strings.NewReader(body))
	for k, v := range signer.Headers(http.MethodPost, "/api/venues/0/active", body) {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/api/venues/0/active", strings.NewReader(`{"index":1}`))
	for k, v := range signer.Headers(http.MethodPost, "/api/venues/0/active", body) {
		req.Header.Set(k, v)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("", nil)(echo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/venues", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://ok"})(echo)

	req := httptest.NewRequest(http.MethodOptions, "/api/venues", nil)
	req.Header.Set("Origin", "http://ok")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ok", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/venues", nil)
	req.Header.Set("Origin", "http://evil")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

type countingLimiter struct {
	n   int
	err error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.n++
	return l.n <= 1, l.err
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(&countingLimiter{}, 1, time.Minute, slog.Default())(echo)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	failing := RateLimit(&countingLimiter{n: 5, err: errors.New("down")}, 1, time.Minute, slog.Default())(echo)
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(req))
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	assert.Equal(t, "1.2.3.4", clientIP(req))
}

func TestIdempotent(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	d.now = func() time.Time { return now }
	h := Idempotent(d)(echo)

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/executions", strings.NewReader("{}"))
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusConflict, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusOK, send(""))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, http.StatusOK, send("a"))

	d.Cleanup()
	assert.Len(t, d.seen, 1)
}
