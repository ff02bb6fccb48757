package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"adboard/internal/httpjson"
)

type contextKey string

const (
	userContextKey  contextKey = "adboard_user"
	tokenContextKey contextKey = "adboard_token"
)

func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userContextKey).(*User)
	return u, ok && u != nil
}

func tokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenContextKey).(string)
	return t
}

// CredentialSource pulls the raw bearer credential out of a request.
type CredentialSource func(r *http.Request) string

// FromXToken reads the opaque token header.
func FromXToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Token"))
}

// FromAuthorization reads an "Authorization: Bearer <token>" header.
func FromAuthorization(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// RequireUser resolves the request credential and puts the user in the
// context. Requests without a valid credential get 401.
func RequireUser(svc *Service, source CredentialSource, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := source(r)
			user, err := svc.Authenticate(r.Context(), raw)
			if err != nil {
				httpjson.Error(w, logger, "authenticate", err)
				return
			}
			ctx := WithUser(r.Context(), user)
			ctx = context.WithValue(ctx, tokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
