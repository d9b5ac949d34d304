package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridianhq/meridian/internal/platform/httpx"
	"github.com/meridianhq/meridian/internal/shared"
)

// Handler exposes the role registry and assignment ledger as a JSON API.
type Handler struct {
	logger    *slog.Logger
	registry  *Registry
	ledger    *Ledger
	evaluator *Evaluator
	validate  *validator.Validate
	mw        Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry, ledger *Ledger, evaluator *Evaluator, mw Middleware) *Handler {
	return &Handler{
		logger:    logger,
		registry:  registry,
		ledger:    ledger,
		evaluator: evaluator,
		validate:  validator.New(),
		mw:        mw,
	}
}

// MountRoutes registers role and assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.roles", ActionRead))
			r.Get("/", h.listRoles)
			r.Get("/{id}", h.getRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.roles", ActionCreate))
			r.Post("/", h.createRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.roles", ActionUpdate))
			r.Put("/{id}", h.updateRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.roles", ActionDelete))
			r.Delete("/{id}", h.deleteRole)
		})
	})

	r.Route("/assignments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.userRoles", ActionRead))
			r.Get("/users/{userID}", h.listUserRoles)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.userRoles", ActionCreate))
			r.Post("/", h.assignRole)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.mw.Require("settings.userRoles", ActionDelete))
			r.Post("/revoke", h.revokeRole)
			r.Delete("/{id}", h.deleteAssignment)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireAuthenticated)
		r.Get("/me/permissions", h.myPermissions)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description" validate:"max=500"`
	Permissions Grid   `json:"permissions"`
	Scope       Scope  `json:"scope"`
	SortOrder   int    `json:"sort_order"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid role id: %w", shared.ErrValidation))
		return
	}
	role, err := h.registry.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid request body: %w", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	role, err := h.registry.Create(r.Context(), RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Scope:       req.Scope,
		SortOrder:   req.SortOrder,
	}, actor)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid role id: %w", shared.ErrValidation))
		return
	}
	var req roleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid request body: %w", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	role, err := h.registry.Update(r.Context(), id, RoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		Scope:       req.Scope,
		SortOrder:   req.SortOrder,
	}, actor)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid role id: %w", shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	if err := h.registry.Delete(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	UserID     uuid.UUID  `json:"user_id" validate:"required"`
	RoleID     uuid.UUID  `json:"role_id" validate:"required"`
	LocationID uuid.UUID  `json:"location_id" validate:"required"`
	ProjectID  *uuid.UUID `json:"project_id"`
	StartDate  *time.Time `json:"start_date"`
	EndDate    *time.Time `json:"end_date"`
	Notes      string     `json:"notes" validate:"max=500"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid request body: %w", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	assignment, err := h.ledger.AssignRole(r.Context(), AssignRoleInput{
		UserID:     req.UserID,
		RoleID:     req.RoleID,
		LocationID: req.LocationID,
		ProjectID:  req.ProjectID,
		AssignedBy: actor,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Notes:      req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

type revokeRequest struct {
	UserID     uuid.UUID  `json:"user_id" validate:"required"`
	RoleID     uuid.UUID  `json:"role_id" validate:"required"`
	LocationID uuid.UUID  `json:"location_id" validate:"required"`
	ProjectID  *uuid.UUID `json:"project_id"`
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid request body: %w", shared.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, r, fmt.Errorf("%v: %w", err, shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	assignment, err := h.ledger.RevokeRole(r.Context(), req.UserID, req.RoleID, req.LocationID, req.ProjectID, actor)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignment)
}

func (h *Handler) deleteAssignment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid assignment id: %w", shared.ErrValidation))
		return
	}
	actor, _ := CurrentUserID(r)
	if err := h.ledger.DeleteAssignment(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		httpx.RespondError(w, r, fmt.Errorf("invalid user id: %w", shared.ErrValidation))
		return
	}
	locationID, projectID, err := ContextFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	assignments, err := h.ledger.GetUserRoles(r.Context(), userID, locationID, projectID)
	if err != nil {
		h.logger.Error("list user roles", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	userID, _ := CurrentUserID(r)
	locationID, projectID, err := ContextFromRequest(r)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	permissions, err := h.evaluator.EffectivePermissions(r.Context(), userID, locationID, projectID)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, permissions)
}
