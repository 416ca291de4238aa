package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/kb-management/internal"
	"github.com/frahmantamala/kb-management/internal/accesscontrol"
	"github.com/go-chi/chi"
)

// RequireKBAccess guards a route subtree with a knowledge base access check.
// The kb id comes from the {kbID} URL param and the actor from the request
// context set by the auth middleware. Deleted and unknown kbs both map to 404
// so callers cannot probe which ids exist.
func RequireKBAccess(engine *accesscontrol.Engine, required accesscontrol.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := internal.ActorIDFromContext(r.Context())
			if actorID == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			kbID := chi.URLParam(r, "kbID")
			if kbID == "" {
				http.Error(w, "missing kb id", http.StatusBadRequest)
				return
			}

			decision, err := engine.CheckAccess(r.Context(), actorID, kbID, required)
			if err != nil {
				slog.Error("access check failed", "kb_id", kbID, "actor_id", actorID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if !decision.Allowed {
				switch decision.Denial {
				case accesscontrol.DenialKBNotFound:
					http.Error(w, "knowledge base not found", http.StatusNotFound)
				case accesscontrol.DenialActorNotActive:
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				default:
					slog.Warn("access denied: insufficient permission",
						"kb_id", kbID,
						"actor_id", actorID,
						"required", required)
					http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole restricts a route subtree to actors holding one of the given
// roles. The role is resolved from the directory on every request, never from
// token claims.
func RequireRole(directory accesscontrol.DirectoryReader, roles ...accesscontrol.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := internal.ActorIDFromContext(r.Context())
			if actorID == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			actor, err := directory.FindActor(r.Context(), actorID)
			if err != nil {
				slog.Error("role check failed", "actor_id", actorID, "error", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if actor == nil || !actor.Active {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			slog.Warn("access denied: role not permitted",
				"actor_id", actorID,
				"actor_role", actor.Role)
			http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
		})
	}
}
