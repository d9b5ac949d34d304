package rbac

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/shared"
)

// Context headers the admin frontend sends with every request.
const (
	HeaderLocationID = "X-Location-ID"
	HeaderProjectID  = "X-Project-ID"
)

// DecisionRecorder observes authorization outcomes, typically for metrics.
type DecisionRecorder interface {
	AuthzDecision(modulePath string, allowed bool)
}

// Middleware wires authorization checks for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Metrics   DecisionRecorder
}

// Require ensures the current user may perform the action under the module
// path within the location/project context carried by the request headers.
func (m Middleware) Require(modulePath string, action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := CurrentUserID(r)
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			locationID, projectID, err := ContextFromRequest(r)
			if err != nil {
				httpx.RespondError(w, r, err)
				return
			}
			allowed, err := m.Evaluator.HasPermission(r.Context(), userID, modulePath, action, locationID, projectID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz check", slog.String("module", modulePath), slog.String("action", string(action)), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if m.Metrics != nil {
				m.Metrics.AuthzDecision(modulePath, allowed)
			}
			if !allowed {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated only checks that a user session is present.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUserID(r); !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentUserID extracts the authenticated user from the request session.
func CurrentUserID(r *http.Request) (uuid.UUID, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return uuid.Nil, false
	}
	id := sess.UserID()
	return id, id != uuid.Nil
}

// ContextFromRequest parses the location/project context headers. The
// location header is required; the project header is optional.
func ContextFromRequest(r *http.Request) (uuid.UUID, *uuid.UUID, error) {
	locationID, err := uuid.Parse(r.Header.Get(HeaderLocationID))
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("rbac: %s header must hold a location id: %w", HeaderLocationID, shared.ErrValidation)
	}
	raw := r.Header.Get(HeaderProjectID)
	if raw == "" {
		return locationID, nil, nil
	}
	projectID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("rbac: %s header must hold a project id: %w", HeaderProjectID, shared.ErrValidation)
	}
	return locationID, &projectID, nil
}
