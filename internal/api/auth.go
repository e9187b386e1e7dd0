package api

import (
	"context"
	"net/http"
	"strings"

	"inkwell/internal/apperr"
	"inkwell/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken reads the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AuthenticateRequest verifies the bearer token and resolves its subject.
// Called by the gate middleware; failures there are not fatal, the request
// simply proceeds unauthenticated.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, bool) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, false
	}
	claims, err := h.Tokens.Verify(token)
	if err != nil {
		return models.User{}, false
	}
	user, exists, err := h.Store.GetUser(claims.UserID)
	if err != nil || !exists {
		return models.User{}, false
	}
	return user, true
}

// requireActor returns the authenticated user from the request context, or
// the Authentication error each protected operation surfaces itself.
func requireActor(ctx context.Context) (models.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return models.User{}, apperr.Authentication("Not authenticated!")
	}
	return user, nil
}
