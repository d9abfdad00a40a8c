package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/Shivamkadam692/WorkConnect/internal/models"
)

type contextKey string

const ActorContextKey contextKey = "actor"

// Identity headers set by the trusted session layer in front of the service.
const (
	HeaderUserID        = "X-User-ID"
	HeaderUserRole      = "X-User-Role"
	HeaderInternalToken = "X-Internal-Token"
)

// RequireIdentity puts the caller's Actor in the request context. Requests
// without a valid identity are rejected with 401.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(HeaderUserID)
		rawRole := r.Header.Get(HeaderUserRole)
		if rawID == "" || rawRole == "" {
			jsonError(w, http.StatusUnauthorized, "missing identity headers")
			return
		}

		userID, err := uuid.Parse(rawID)
		if err != nil || userID == uuid.Nil {
			jsonError(w, http.StatusUnauthorized, "invalid user ID format")
			return
		}
		role := models.Role(rawRole)
		if !role.Valid() {
			jsonError(w, http.StatusUnauthorized, "invalid user role")
			return
		}

		ctx := WithActor(r.Context(), models.Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireInternalToken guards collaborator callbacks with a shared secret.
// An empty secret rejects every call.
func RequireInternalToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderInternalToken)
			if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				jsonError(w, http.StatusUnauthorized, "invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithActor returns a context carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext retrieves the authenticated actor from the request context.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(models.Actor)
	return actor, ok
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
