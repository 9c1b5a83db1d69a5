package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"civicdesk/internal/identity"
	id "civicdesk/pkg/domain"
)

// ActorResolver turns a bearer token into a resolved actor. The JWT validator
// in internal/platform/token implements it; tests use stubs.
type ActorResolver interface {
	ResolveActor(ctx context.Context, token string) (identity.Actor, error)
}

type contextKeyActor struct{}

// ContextKeyActor is exported for handlers and test helpers.
var ContextKeyActor = contextKeyActor{}

// GetActor retrieves the authenticated actor from the context. The zero Actor
// means "not authenticated".
func GetActor(ctx context.Context) identity.Actor {
	actor, ok := ctx.Value(ContextKeyActor).(identity.Actor)
	if !ok {
		return identity.Actor{}
	}
	return actor
}

// WithActor stores an actor on the context. Exported for test helpers.
func WithActor(ctx context.Context, actor identity.Actor) context.Context {
	return context.WithValue(ctx, ContextKeyActor, actor)
}

// RequireAuth validates the bearer token and stores the resolved actor in the
// request context. The actor's role and verification always come from the
// server side; a client-supplied role claim is never trusted on its own.
func RequireAuth(resolver ActorResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			actor, err := resolver.ResolveActor(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithActor(ctx, actor)))
		})
	}
}

// RequireRole gates a subtree to actors holding one of the given roles.
// It must run after RequireAuth.
func RequireRole(logger *slog.Logger, roles ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := GetActor(r.Context())
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(r.Context(), "forbidden - wrong role",
				"role", string(actor.Role),
				"request_id", GetRequestID(r.Context()),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}`))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthenticated","error_description":"` + description + `"}`))
}
