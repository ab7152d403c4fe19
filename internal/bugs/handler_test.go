package bugs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/rbac"
	"github.com/bugtrail/bugtrail/internal/shared"
)

func trackerRoles() rbac.RoleStore {
	return rbac.NewMemoryStore(
		rbac.Role{Name: "reporter", Permissions: map[string]bool{
			shared.PermViewData:    true,
			shared.PermCreateBug:   true,
			shared.PermEditMyBug:   true,
			shared.PermAddComments: true,
		}},
		rbac.Role{Name: "developer", Permissions: map[string]bool{
			shared.PermViewData:       true,
			shared.PermEditIfAssigned: true,
		}},
		rbac.Role{Name: "manager", Permissions: map[string]bool{
			shared.PermViewData:       true,
			shared.PermEditAnyBug:     true,
			shared.PermCloseAnyBug:    true,
			shared.PermDeleteBug:      true,
			shared.PermReassignAnyBug: true,
		}},
	)
}

func bugRouter(t *testing.T, repo Repository, accounts AccountLookup, ident *shared.Identity) http.Handler {
	t.Helper()
	mw := rbac.Middleware{Evaluator: rbac.NewEvaluator(trackerRoles())}
	svc := NewService(repo, accounts, nil, &mockIdem{}, nil, quietLogger())
	handler := NewHandler(quietLogger(), svc, mw)

	r := chi.NewRouter()
	if ident != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), ident)))
			})
		})
	}
	handler.MountRoutes(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorResponse {
	t.Helper()
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestMalformedBugIDFailsBeforePermissionWork(t *testing.T) {
	// The identity has no roles at all; a permission gate would answer 403,
	// so a 400 proves the id check runs first.
	router := bugRouter(t, newMockRepository(), nil, &shared.Identity{ID: 1})

	rec := doJSON(t, router, http.MethodGet, "/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed bug id", errorBody(t, rec).Error)
}

func TestUnknownBugIsNotFoundBeforeOwnership(t *testing.T) {
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, newMockRepository(), nil, ident)

	rec := doJSON(t, router, http.MethodPatch, "/999", `{"title":"new"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorMayEditOwnBug(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "old", Severity: 2, AuthorID: 1}
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodPatch, "/1", `{"title":"renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var bug Bug
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bug))
	assert.Equal(t, "renamed", bug.Title)
}

func TestNonAuthorWithOwnScopedGrantIsForbidden(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "old", AuthorID: 42}
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodPatch, "/1", `{"title":"renamed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(rbac.ReasonForbidden), errorBody(t, rec).Error)
	assert.Equal(t, "old", repo.bugs[1].Title)
}

func TestAssignedDeveloperMayEdit(t *testing.T) {
	repo := newMockRepository()
	assignee := int64(5)
	repo.bugs[1] = Bug{ID: 1, Title: "old", AuthorID: 42, AssigneeID: &assignee}
	ident := &shared.Identity{ID: 5, Roles: []string{"developer"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodPatch, "/1", `{"title":"renamed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListRequiresViewPermission(t *testing.T) {
	ident := &shared.Identity{ID: 1, Roles: []string{"ghost"}}
	router := bugRouter(t, newMockRepository(), nil, ident)

	rec := doJSON(t, router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, []string{shared.PermViewData}, errorBody(t, rec).Missing)
}

func TestCreateReportsMissingTitleField(t *testing.T) {
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, newMockRepository(), nil, ident)

	rec := doJSON(t, router, http.MethodPost, "/", `{"description":"no title","severity":3}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "title")
}

func TestCreateHonoursIdempotencyKey(t *testing.T) {
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	repo := newMockRepository()
	router := bugRouter(t, repo, nil, ident)

	payload := `{"title":"crash","severity":3}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set(IdempotencyHeader, "retry-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set(IdempotencyHeader, "retry-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, repo.bugs, 1)
}

func TestReassignUnknownAssigneeIsBadRequest(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", AuthorID: 42}
	ident := &shared.Identity{ID: 1, Roles: []string{"manager"}}
	router := bugRouter(t, repo, &mockAccounts{}, ident)

	rec := doJSON(t, router, http.MethodPatch, "/1/reassign", `{"assigneeId":99}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseRequiresOnlyClosePermission(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", AuthorID: 42, Status: StatusOpen}
	ident := &shared.Identity{ID: 1, Roles: []string{"manager"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodPatch, "/1/close", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bug Bug
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bug))
	assert.Equal(t, StatusClosed, bug.Status)
}

func TestDeleteBug(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", AuthorID: 42}
	ident := &shared.Identity{ID: 1, Roles: []string{"manager"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodDelete, "/1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, repo.bugs)
}

func TestListRejectsUnknownClassificationFilter(t *testing.T) {
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, newMockRepository(), nil, ident)

	rec := doJSON(t, router, http.MethodGet, "/?classification=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommentFlow(t *testing.T) {
	repo := newMockRepository()
	repo.bugs[1] = Bug{ID: 1, Title: "x", AuthorID: 42}
	ident := &shared.Identity{ID: 1, Roles: []string{"reporter"}}
	router := bugRouter(t, repo, nil, ident)

	rec := doJSON(t, router, http.MethodPost, "/1/comments", `{"body":"reproduced on staging"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var comment Comment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &comment))
	assert.Equal(t, int64(1), comment.BugID)

	rec = doJSON(t, router, http.MethodGet, "/1/comments", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/1/comments/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "malformed comment id", errorBody(t, rec).Error)
}
