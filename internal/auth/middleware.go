package auth

import (
	"net/http"
	"strings"
)

// ErrorWriter renders an authentication failure to the client.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Middleware guards routes with bearer-token sessions.
type Middleware struct {
	auth    *Service
	onError ErrorWriter
}

func NewMiddleware(svc *Service, onError ErrorWriter) *Middleware {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return &Middleware{auth: svc, onError: onError}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", ErrMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedToken
	}
	return parts[1], nil
}

// RequireBearer rejects requests without a live session and otherwise stores
// the user id and token on the request context.
func (m *Middleware) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			m.onError(w, r, err)
			return
		}

		ctx := r.Context()
		userID, err := m.auth.Resolve(ctx, token)
		if err != nil {
			m.onError(w, r, err)
			return
		}

		ctx = WithUserID(ctx, userID)
		ctx = WithSessionToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
