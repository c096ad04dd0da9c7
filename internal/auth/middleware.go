package auth

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/lilgiftcorner/server/internal/errors"
	"github.com/lilgiftcorner/server/internal/logger"
)

type contextKey string

const (
	contextKeyClaims   contextKey = "auth_claims"
	contextKeyTokenErr contextKey = "auth_token_error"
)

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, contextKeyClaims, claims)
}

// UserFromContext returns the authenticated bearer, if any.
func UserFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(Claims)
	return claims, ok
}

// UserID returns the authenticated user id or "".
func UserID(ctx context.Context) string {
	claims, _ := UserFromContext(ctx)
	return claims.UserID
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// Authenticate attaches the claims of a valid bearer token. Requests without a token, or
// with a bad one, continue anonymously; RequireUser decides whether that is allowed.
func (i *Issuer) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := i.Parse(token)
		if err != nil {
			ctx := context.WithValue(r.Context(), contextKeyTokenErr, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}
		ctx := WithClaims(r.Context(), claims)
		ctx = logger.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserFromContext(r.Context()); !ok {
			if bad, _ := r.Context().Value(contextKeyTokenErr).(bool); bad {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidToken, "Invalid token")
				return
			}
			apierrors.WriteSimpleError(w, apierrors.ErrCodeUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose bearer is not an admin. It implies RequireUser.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := UserFromContext(r.Context())
		if !claims.IsAdmin() {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
