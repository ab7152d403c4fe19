package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/rbac"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// AccountService is the business contract the handler consumes.
type AccountService interface {
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateProfile(ctx context.Context, id int64, name, password string) (User, error)
	AssignRoles(ctx context.Context, id int64, roles []string) (User, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  AccountService
	mw       rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service AccountService, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, mw: mw, validate: httpx.NewValidator()}
}

type userIDKey struct{}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)
	r.With(h.mw.RequireAny(shared.PermViewData)).Get("/", h.list)
	r.Route("/{userID}", func(r chi.Router) {
		r.Use(h.userIDCtx)
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.With(h.mw.RequireAny(shared.PermAssignRoles)).Put("/roles", h.assignRoles)
	})
}

// userIDCtx validates the id syntax before any permission or database work.
func (h *Handler) userIDCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, "malformed user id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, id)))
	})
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := userIDFrom(r.Context())
	ident := shared.IdentityFromContext(r.Context())
	// Anyone may read their own account; reading others requires view data.
	if ident.ID != id {
		decision, err := h.mw.Evaluator.RequireAny(r.Context(), ident, shared.PermViewData)
		if err != nil {
			h.logger.Error("authorize get user", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !decision.Allowed {
			h.mw.Deny(w, decision)
			return
		}
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("get user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	Name     string `json:"name" validate:"omitempty,min=1,max=100"`
	Password string `json:"password" validate:"omitempty,min=8"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id := userIDFrom(r.Context())
	ident := shared.IdentityFromContext(r.Context())
	if ident.ID != id {
		decision, err := h.mw.Evaluator.RequireAny(r.Context(), ident, shared.PermEditAnyUser)
		if err != nil {
			h.logger.Error("authorize update user", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !decision.Allowed {
			h.mw.Deny(w, decision)
			return
		}
	}
	var req updateProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), id, req.Name, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("update user", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

type assignRolesRequest struct {
	Roles []string `json:"roles" validate:"required"`
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request) {
	id := userIDFrom(r.Context())
	var req assignRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	user, err := h.service.AssignRoles(r.Context(), id, req.Roles)
	if err != nil {
		if errors.Is(err, ErrUnknownRole) {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("assign roles", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
