package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/rbac"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	mw      rbac.Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, mw: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)
	r.With(h.mw.RequireAny(shared.PermViewAuditLog)).Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(r *http.Request) (Filters, error) {
	q := r.URL.Query()
	filters := Filters{
		Entity: strings.TrimSpace(q.Get("entity")),
		Action: strings.TrimSpace(q.Get("action")),
	}
	if v := strings.TrimSpace(q.Get("actor")); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return Filters{}, errInvalid("actor")
		}
		filters.Actor = parsed
	}
	for name, target := range map[string]*time.Time{
		"from": &filters.From,
		"to":   &filters.To,
	} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			parsed, err := time.Parse(time.RFC3339, v)
			if err != nil {
				// Date-only values are accepted as a convenience.
				parsed, err = time.Parse("2006-01-02", v)
			}
			if err != nil {
				return Filters{}, errInvalid(name)
			}
			*target = parsed
		}
	}
	for name, target := range map[string]*int{
		"page":  &filters.Page,
		"limit": &filters.PageSize,
	} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				return Filters{}, errInvalid(name)
			}
			*target = parsed
		}
	}
	return filters, nil
}

type errInvalid string

func (e errInvalid) Error() string {
	return "malformed " + string(e)
}
