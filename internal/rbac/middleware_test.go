package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/shared"
)

type recordingObserver struct {
	outcomes []string
	reasons  []string
}

func (o *recordingObserver) ObserveAuthz(outcome, reason string) {
	o.outcomes = append(o.outcomes, outcome)
	o.reasons = append(o.reasons, reason)
}

func gatewayRouter(mw Middleware, ident *shared.Identity) http.Handler {
	r := chi.NewRouter()
	if ident != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(shared.ContextWithIdentity(req.Context(), ident)))
			})
		})
	}
	r.Use(mw.RequireAuth)
	r.With(mw.RequireAny(shared.PermViewData)).Get("/data", func(w http.ResponseWriter, req *http.Request) {
		httpx.Message(w, http.StatusOK, "ok")
	})
	return r
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	observer := &recordingObserver{}
	mw := Middleware{Evaluator: NewEvaluator(testStore()), Observer: observer}

	rec := httptest.NewRecorder()
	gatewayRouter(mw, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(ReasonUnauthenticated), body.Error)
	assert.Equal(t, []string{"deny"}, observer.outcomes)
}

func TestRequireAnyDenyNamesMissingPermissions(t *testing.T) {
	mw := Middleware{Evaluator: NewEvaluator(testStore())}
	ident := &shared.Identity{ID: 1, Roles: []string{"editor"}}

	rec := httptest.NewRecorder()
	gatewayRouter(mw, ident).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(ReasonInsufficientPermission), body.Error)
	assert.Equal(t, []string{shared.PermViewData}, body.Missing)
}

func TestRequireAnyAllows(t *testing.T) {
	observer := &recordingObserver{}
	mw := Middleware{Evaluator: NewEvaluator(testStore()), Observer: observer}
	ident := &shared.Identity{ID: 1, Roles: []string{"viewer"}}

	rec := httptest.NewRecorder()
	gatewayRouter(mw, ident).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, observer.outcomes, "allow")
}

func TestGateStoreFailureIsInternalError(t *testing.T) {
	mw := Middleware{Evaluator: NewEvaluator(failingStore{err: assert.AnError})}
	ident := &shared.Identity{ID: 1, Roles: []string{"viewer"}}

	rec := httptest.NewRecorder()
	gatewayRouter(mw, ident).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal error", body.Error)
}
