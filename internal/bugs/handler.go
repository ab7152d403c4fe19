package bugs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/rbac"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// IdempotencyHeader carries the client's retry-dedup key on creates.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages the bug endpoints. Each route runs the same gate sequence:
// authentication, id syntax, permission, fetch, ownership where the route has
// an ownership family, then body validation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	mw       rbac.Middleware
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, mw: mw, validate: httpx.NewValidator()}
}

type bugIDKey struct{}

// MountRoutes registers bug routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.mw.RequireAuth)
	r.With(h.mw.RequireAny(shared.PermViewData)).Get("/", h.list)
	r.With(h.mw.RequireAny(shared.PermCreateBug)).Post("/", h.create)
	r.Route("/{bugID}", func(r chi.Router) {
		r.Use(h.bugIDCtx)
		r.With(h.mw.RequireAny(shared.PermViewData)).Get("/", h.get)
		r.With(h.mw.RequireAny(shared.PermEditAnyBug, shared.PermEditMyBug, shared.PermEditIfAssigned)).
			Patch("/", h.edit)
		r.With(h.mw.RequireAny(shared.PermReassignAnyBug, shared.PermReassignIfAssigned)).
			Patch("/reassign", h.reassign)
		r.With(h.mw.RequireAny(shared.PermClassifyAnyBug, shared.PermClassifyIfAssigned)).
			Patch("/classify", h.classify)
		r.With(h.mw.RequireAny(shared.PermCloseAnyBug)).Patch("/close", h.close)
		r.With(h.mw.RequireAny(shared.PermDeleteBug)).Delete("/", h.delete)

		r.Route("/comments", func(r chi.Router) {
			r.With(h.mw.RequireAny(shared.PermViewData)).Get("/", h.listComments)
			r.With(h.mw.RequireAny(shared.PermAddComments)).Post("/", h.addComment)
			r.With(h.mw.RequireAny(shared.PermViewData)).Get("/{commentID}", h.getComment)
		})
		r.Route("/tests", func(r chi.Router) {
			r.With(h.mw.RequireAny(shared.PermViewData)).Get("/", h.listTestCases)
			r.With(h.mw.RequireAny(shared.PermAddTestCase)).Post("/", h.addTestCase)
			r.With(h.mw.RequireAny(shared.PermEditTestCase)).Patch("/{testID}", h.updateTestCase)
			r.With(h.mw.RequireAny(shared.PermDeleteTestCase)).Delete("/{testID}", h.deleteTestCase)
		})
	})
}

// bugIDCtx validates the id syntax before any permission or database work.
func (h *Handler) bugIDCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "bugID"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Error(w, http.StatusBadRequest, "malformed bug id")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bugIDKey{}, id)))
	})
}

func bugIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(bugIDKey{}).(int64)
	return id
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, limit, ok := shared.ParsePageQuery(r)
	if !ok {
		httpx.Error(w, http.StatusBadRequest, "malformed pagination")
		return
	}
	filters, err := parseListFilters(r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	list, pagination, err := h.service.List(r.Context(), filters, page, limit)
	if err != nil {
		h.logger.Error("list bugs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Bug{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"bugs":       list,
		"pagination": pagination,
	})
}

func parseListFilters(r *http.Request) (ListFilters, error) {
	q := r.URL.Query()
	filters := ListFilters{
		Keyword:        strings.TrimSpace(q.Get("keyword")),
		Classification: strings.TrimSpace(q.Get("classification")),
		Status:         strings.TrimSpace(q.Get("status")),
		SortBy:         strings.TrimSpace(q.Get("sortBy")),
	}
	if filters.Classification != "" && !KnownClassification(filters.Classification) {
		return ListFilters{}, errors.New("unknown classification filter")
	}
	if filters.Status != "" && filters.Status != StatusOpen && filters.Status != StatusClosed {
		return ListFilters{}, errors.New("unknown status filter")
	}
	for name, target := range map[string]*int{
		"minSeverity": &filters.MinSeverity,
		"maxSeverity": &filters.MaxSeverity,
	} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < MinSeverity || parsed > MaxSeverity {
				return ListFilters{}, errors.New("malformed " + name)
			}
			*target = parsed
		}
	}
	for name, target := range map[string]*int64{
		"assignedTo": &filters.AssignedTo,
		"author":     &filters.Author,
	} {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil || parsed <= 0 {
				return ListFilters{}, errors.New("malformed " + name)
			}
			*target = parsed
		}
	}
	return filters, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	bug, err := h.service.Get(r.Context(), bugIDFrom(r.Context()))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("get bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bug)
}

type createBugRequest struct {
	Title            string `json:"title" validate:"required,min=1,max=200"`
	Description      string `json:"description" validate:"max=10000"`
	StepsToReproduce string `json:"stepsToReproduce" validate:"max=10000"`
	Severity         int    `json:"severity" validate:"required,min=1,max=5"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createBugRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	bug, err := h.service.Create(r.Context(), actor, CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		StepsToRepro: req.StepsToReproduce,
		Severity:     req.Severity,
	}, r.Header.Get(IdempotencyHeader))
	if err != nil {
		if !errors.Is(err, shared.ErrIdempotencyConflict) {
			h.logger.Error("create bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bug)
}

type editBugRequest struct {
	Title            *string `json:"title" validate:"omitempty,min=1,max=200"`
	Description      *string `json:"description" validate:"omitempty,max=10000"`
	StepsToReproduce *string `json:"stepsToReproduce" validate:"omitempty,max=10000"`
	Severity         *int    `json:"severity" validate:"omitempty,min=1,max=5"`
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	bug, ok := h.fetchAuthorized(w, r, rbac.CapEditBug)
	if !ok {
		return
	}
	var req editBugRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	updated, err := h.service.Edit(r.Context(), actor, bug, EditInput{
		Title:        req.Title,
		Description:  req.Description,
		StepsToRepro: req.StepsToReproduce,
		Severity:     req.Severity,
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("edit bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type reassignRequest struct {
	AssigneeID *int64 `json:"assigneeId" validate:"omitempty,gt=0"`
}

func (h *Handler) reassign(w http.ResponseWriter, r *http.Request) {
	bug, ok := h.fetchAuthorized(w, r, rbac.CapReassignBug)
	if !ok {
		return
	}
	var req reassignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	updated, err := h.service.Reassign(r.Context(), actor, bug, req.AssigneeID)
	if err != nil {
		if errors.Is(err, ErrUnknownAssignee) {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("reassign bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

type classifyRequest struct {
	Classification string `json:"classification" validate:"required,oneof=unclassified approved unapproved duplicate"`
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	bug, ok := h.fetchAuthorized(w, r, rbac.CapClassifyBug)
	if !ok {
		return
	}
	var req classifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	updated, err := h.service.Classify(r.Context(), actor, bug, req.Classification)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("classify bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	bug, ok := h.fetchBug(w, r)
	if !ok {
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	updated, err := h.service.Close(r.Context(), actor, bug)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("close bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	bug, ok := h.fetchBug(w, r)
	if !ok {
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, bug); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("delete bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusOK, "bug deleted")
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	list, err := h.service.ListComments(r.Context(), bugIDFrom(r.Context()))
	if err != nil {
		h.logger.Error("list comments", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Comment{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

type commentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
}

func (h *Handler) addComment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	var req commentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	comment, err := h.service.AddComment(r.Context(), actor, bugIDFrom(r.Context()), req.Body)
	if err != nil {
		h.logger.Error("add comment", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) getComment(w http.ResponseWriter, r *http.Request) {
	commentID, err := strconv.ParseInt(chi.URLParam(r, "commentID"), 10, 64)
	if err != nil || commentID <= 0 {
		httpx.Error(w, http.StatusBadRequest, "malformed comment id")
		return
	}
	comment, err := h.service.GetComment(r.Context(), bugIDFrom(r.Context()), commentID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("get comment", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comment)
}

func (h *Handler) listTestCases(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	list, err := h.service.ListTestCases(r.Context(), bugIDFrom(r.Context()))
	if err != nil {
		h.logger.Error("list test cases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []TestCase{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

type createTestCaseRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=200"`
	Steps    string `json:"steps" validate:"required,min=1,max=10000"`
	Expected string `json:"expected" validate:"max=10000"`
}

func (h *Handler) addTestCase(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	var req createTestCaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	tc, err := h.service.AddTestCase(r.Context(), actor, bugIDFrom(r.Context()), TestCaseInput{
		Title:    req.Title,
		Steps:    req.Steps,
		Expected: req.Expected,
	})
	if err != nil {
		h.logger.Error("add test case", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tc)
}

type updateTestCaseRequest struct {
	Title    string `json:"title" validate:"omitempty,min=1,max=200"`
	Steps    string `json:"steps" validate:"omitempty,min=1,max=10000"`
	Expected string `json:"expected" validate:"omitempty,max=10000"`
}

func (h *Handler) updateTestCase(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	var req updateTestCaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if fields := httpx.ValidationFields(h.validate.Struct(req)); len(fields) > 0 {
		httpx.ErrorFields(w, "validation failed", fields)
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	tc, err := h.service.UpdateTestCase(r.Context(), actor, bugIDFrom(r.Context()), testID, TestCaseInput{
		Title:    req.Title,
		Steps:    req.Steps,
		Expected: req.Expected,
	})
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("update test case", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tc)
}

func (h *Handler) deleteTestCase(w http.ResponseWriter, r *http.Request) {
	testID, ok := h.testID(w, r)
	if !ok {
		return
	}
	if _, ok := h.fetchBug(w, r); !ok {
		return
	}
	actor := shared.IdentityFromContext(r.Context())
	if err := h.service.DeleteTestCase(r.Context(), actor, bugIDFrom(r.Context()), testID); err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("delete test case", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.Message(w, http.StatusOK, "test case deleted")
}

func (h *Handler) testID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "testID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Error(w, http.StatusBadRequest, "malformed test case id")
		return 0, false
	}
	return id, true
}

// fetchBug loads the bug named by the route, writing 404 or 500 on failure.
func (h *Handler) fetchBug(w http.ResponseWriter, r *http.Request) (Bug, bool) {
	bug, err := h.service.Get(r.Context(), bugIDFrom(r.Context()))
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("fetch bug", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return Bug{}, false
	}
	return bug, true
}

// fetchAuthorized loads the bug and runs the ownership table for capability.
// The bug is fetched before the ownership check so an unknown id is a 404,
// not a 403.
func (h *Handler) fetchAuthorized(w http.ResponseWriter, r *http.Request, capability rbac.Capability) (Bug, bool) {
	bug, ok := h.fetchBug(w, r)
	if !ok {
		return Bug{}, false
	}
	ident := shared.IdentityFromContext(r.Context())
	decision, err := h.mw.Evaluator.AuthorizeResource(r.Context(), ident, bug, capability)
	if err != nil {
		h.logger.Error("authorize bug mutation", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return Bug{}, false
	}
	if !decision.Allowed {
		h.mw.Deny(w, decision)
		return Bug{}, false
	}
	return bug, true
}
