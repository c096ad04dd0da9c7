package idempotency

import (
	"bytes"
	"net/http"
	"time"

	"github.com/lilgiftcorner/server/internal/auth"
	apierrors "github.com/lilgiftcorner/server/internal/errors"
	"github.com/lilgiftcorner/server/internal/logger"
)

const (
	// HeaderKey is the standard idempotency key header
	HeaderKey = "Idempotency-Key"

	// HeaderReplay marks a response served from the store.
	HeaderReplay = "X-Idempotency-Replay"

	// DefaultTTL is the default cache duration for idempotent responses (24 hours)
	DefaultTTL = 24 * time.Hour

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = 2 * time.Minute
)

// responseWriter wraps http.ResponseWriter to capture the response.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) headers() map[string]string {
	out := make(map[string]string, len(rw.Header()))
	for k := range rw.Header() {
		out[k] = rw.Header().Get(k)
	}
	return out
}

// scopedKey binds the client key to the endpoint and the caller so one shopper's key can
// never replay another's response.
func scopedKey(r *http.Request, raw string) string {
	caller := auth.UserID(r.Context())
	if caller == "" {
		caller = "anonymous"
	}
	return r.Method + ":" + r.URL.Path + ":" + caller + ":" + raw
}

func replay(w http.ResponseWriter, cached *Response) {
	for k, v := range cached.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set(HeaderReplay, "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

// Middleware replays 2xx responses for a repeated Idempotency-Key. A key whose first
// request is still running is answered with 409 idempotency_pending; a key whose request
// failed is released so the client may retry it.
func Middleware(store Store, ttl time.Duration) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderKey)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := scopedKey(r, raw)
			log := logger.FromContext(ctx)

			if cached, found := store.Get(ctx, key); found {
				log.Debug().Str("idempotency_key", raw).Msg("idempotency.replay")
				replay(w, cached)
				return
			}

			reserved, err := store.Reserve(ctx, key, pendingTTL)
			if err != nil {
				// The store is advisory; run the request unguarded.
				log.Warn().Err(err).Msg("idempotency.reserve_failed")
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				if cached, found := store.Get(ctx, key); found {
					replay(w, cached)
					return
				}
				apierrors.WriteSimpleError(w, apierrors.ErrCodeIdempotencyPending,
					"A request with this Idempotency-Key is still being processed")
				return
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			if rw.statusCode >= 200 && rw.statusCode < 300 {
				response := &Response{
					StatusCode: rw.statusCode,
					Headers:    rw.headers(),
					Body:       rw.body.Bytes(),
					CachedAt:   time.Now(),
				}
				if err := store.Set(ctx, key, response, ttl); err != nil {
					log.Warn().Err(err).Msg("idempotency.store_failed")
				}
				return
			}
			if err := store.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Msg("idempotency.release_failed")
			}
		})
	}
}
