package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const credentialKey contextKey = "credential"

// AccessTokenCookie is set by the dashboard login flow.
const AccessTokenCookie = "access_token"

// ExtractCredential reads the caller's token: access_token cookie first,
// then "Authorization: Bearer <token>".
func ExtractCredential(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value)
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// WithCredential stores a token in ctx
func WithCredential(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialKey, token)
}

// CredentialFromContext returns the token set by Credential, or "".
func CredentialFromContext(ctx context.Context) string {
	if tok, ok := ctx.Value(credentialKey).(string); ok {
		return tok
	}
	return ""
}

// Credential puts the caller's token (if any) into the request context.
func Credential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tok := ExtractCredential(r); tok != "" {
			r = r.WithContext(WithCredential(r.Context(), tok))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCredential rejects requests without a token when required is true.
// Must run after Credential.
func RequireCredential(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !required {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if CredentialFromContext(r.Context()) == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing credential")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
