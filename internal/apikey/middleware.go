package apikey

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apierrors "github.com/lilgiftcorner/server/internal/errors"
)

// HeaderKey carries an operator key as an alternative to a bearer token.
const HeaderKey = "X-API-Key"

// FromRequest extracts the presented key from X-API-Key or an Authorization bearer.
func FromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderKey)); key != "" {
		return key
	}
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// Matches compares keys in constant time.
func Matches(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// Require protects operator endpoints such as /metrics with a static key. An empty
// key leaves the endpoint open. allow, when non-nil, admits requests that carry other
// credentials, e.g. an admin session.
func Require(key string, allow func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Matches(FromRequest(r), key) || (allow != nil && allow(r)) {
				next.ServeHTTP(w, r)
				return
			}
			apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Invalid or missing API key")
		})
	}
}
