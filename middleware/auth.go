package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"docshare/internal/auth"
	"docshare/pkg/logger"
)

type contextKey string

const (
	UserIDKey    contextKey = "userID"
	UserEmailKey contextKey = "userEmail"
)

// SignInPath is where pages send visitors without a session.
const SignInPath = "/supabase-test"

// Sessions resolves the caller of a request.
type Sessions interface {
	Current(ctx context.Context, w http.ResponseWriter, r *http.Request) (*auth.User, error)
	Authenticate(token string) (*auth.User, error)
}

// AuthMiddleware rejects API requests without a valid session with 401.
func AuthMiddleware(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := identify(sessions, w, r)
			if err != nil {
				logger.Sugar.Debugf("Unauthorized %s %s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized: invalid or expired session"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// PageAuth sends visitors without a session to the sign-in page.
func PageAuth(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.Current(r.Context(), w, r)
			if err != nil {
				http.Redirect(w, r, SignInPath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth attaches the user when there is a session and lets the
// request through either way.
func OptionalAuth(sessions Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := sessions.Current(r.Context(), w, r); err == nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// identify accepts, in order: a bearer header, a token query parameter
// (browsers cannot set headers on WebSocket requests), the session cookie.
func identify(sessions Sessions, w http.ResponseWriter, r *http.Request) (*auth.User, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return sessions.Authenticate(strings.TrimPrefix(h, "Bearer "))
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return sessions.Authenticate(token)
	}
	return sessions.Current(r.Context(), w, r)
}

func WithUser(ctx context.Context, user *auth.User) context.Context {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = user.ID
	}
	ctx = context.WithValue(ctx, UserIDKey, user.ID)
	return context.WithValue(ctx, UserEmailKey, user.Email)
}

// UserID returns the authenticated user id, or "" outside the auth middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDKey).(string)
	return id
}

func UserEmail(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}
