package auth

import "context"

type contextKey string

const (
	contextKeyUserID       contextKey = "user_id"
	contextKeySessionToken contextKey = "session_token"
)

// WithUserID attaches the authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyUserID).(string)
	return id, ok && id != ""
}

func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeySessionToken, token)
}

func SessionTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeySessionToken).(string)
	return s
}
