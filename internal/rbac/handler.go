package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// Handler exposes the administrative role endpoints. Role mutation is an
// out-of-band action and never part of the request hot path.
type Handler struct {
	logger *slog.Logger
	store  RoleStore
	mw     Middleware
}

// NewHandler builds the roles admin handler.
func NewHandler(logger *slog.Logger, store RoleStore, mw Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, store: store, mw: mw}
}

// MountRoutes registers role admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)
	r.Use(h.mw.RequireAny(shared.PermAssignRoles))
	r.Get("/", h.listRoles)
	r.Get("/{roleName}", h.getRole)
	r.Put("/{roleName}", h.putRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "roleName")
	role, err := h.store.GetRole(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httpx.Error(w, http.StatusNotFound, "not found")
			return
		}
		h.logger.Error("get role", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type putRoleRequest struct {
	Description string          `json:"description"`
	Permissions map[string]bool `json:"permissions"`
}

func (h *Handler) putRole(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "roleName"))
	if name == "" {
		httpx.Error(w, http.StatusBadRequest, "role name required")
		return
	}
	var req putRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	fields := make(map[string]string)
	for perm := range req.Permissions {
		if !shared.KnownPermission(perm) {
			fields[perm] = "unknown permission name"
		}
	}
	if len(fields) > 0 {
		httpx.ErrorFields(w, "unknown permission names", fields)
		return
	}
	role, err := h.store.UpsertRole(r.Context(), Role{
		Name:        name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		h.logger.Error("upsert role", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

// SeedRoles upserts the default role set, used at initialization.
func SeedRoles(ctx context.Context, store RoleStore) error {
	for _, role := range DefaultRoles() {
		if _, err := store.UpsertRole(ctx, role); err != nil {
			return fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}
	return nil
}
