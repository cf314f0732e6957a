package middleware

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/profitharness/internal/crypto"
)

// maxSignedBody caps the body read for signature checks.
const maxSignedBody = 1 << 20

// Auth accepts a request carrying either the static API key (Bearer or
// X-API-Key) or a valid HMAC signature from signer. With neither configured
// every request passes. Paths in public skip the check.
func Auth(apiKey string, signer *crypto.RequestAuth, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if (apiKey == "" && signer == nil) || open[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if token := extractToken(r); token != "" && apiKey != "" {
				if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorized(w, "invalid authentication token")
				return
			}

			if signer != nil && r.Header.Get(crypto.HeaderSignature) != "" {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
				if err != nil {
					writeUnauthorized(w, "unreadable body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				err = signer.Verify(r.Method, r.URL.Path, string(body),
					r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature), time.Now())
				if err != nil {
					writeUnauthorized(w, "invalid signature")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			writeUnauthorized(w, "missing authentication")
		})
	}
}

// extractToken reads "Authorization: Bearer <token>" or X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
