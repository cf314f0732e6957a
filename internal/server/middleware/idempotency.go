package middleware

import (
	"net/http"
	"sync"
	"time"
)

// HeaderIdempotencyKey names a client-chosen request key.
const HeaderIdempotencyKey = "Idempotency-Key"

// Dedup remembers keys for ttl. It is safe for concurrent use.
type Dedup struct {
	seen map[string]time.Time
	ttl  time.Duration
	mu   sync.Mutex
	now  func() time.Time
}

// NewDedup creates a Dedup that treats a key as a duplicate if it was seen
// within ttl.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate reports whether key was seen within the ttl. Unseen or expired
// keys are recorded and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	if len(d.seen) > 4096 {
		d.prune(now)
	}
	return false
}

// Cleanup drops expired keys.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.now())
}

func (d *Dedup) prune(now time.Time) {
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Idempotent rejects a request whose Idempotency-Key was already used with
// 409. Requests without the header pass through.
func Idempotent(d *Dedup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key != "" && d.IsDuplicate(r.Method+" "+r.URL.Path+" "+key) {
				writeJSONError(w, http.StatusConflict, "duplicate request")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
