package rbac

import (
	"log/slog"
	"net/http"

	"github.com/bugtrail/bugtrail/internal/platform/httpx"
	"github.com/bugtrail/bugtrail/internal/shared"
)

// DecisionObserver records evaluated gate outcomes, typically a metrics
// counter.
type DecisionObserver interface {
	ObserveAuthz(outcome, reason string)
}

// Middleware wires the evaluator into chi gate functions. Each gate either
// passes control onward or terminates the request with a structured JSON
// error; a gate failure short-circuits everything after it.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Observer  DecisionObserver
}

// RequireAuth rejects unauthenticated requests with 401.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.IdentityFromContext(r.Context()) == nil {
			m.deny(w, Deny(ReasonUnauthenticated))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current identity holds at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, ident *shared.Identity) (Decision, error) {
		return m.Evaluator.RequireAny(r.Context(), ident, perms...)
	})
}

// RequireAll ensures the current identity holds all of perms. The deny
// response names exactly the missing permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.gate(func(r *http.Request, ident *shared.Identity) (Decision, error) {
		return m.Evaluator.RequireAll(r.Context(), ident, perms...)
	})
}

func (m Middleware) gate(check func(*http.Request, *shared.Identity) (Decision, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := shared.IdentityFromContext(r.Context())
			decision, err := check(r, ident)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac gate", slog.Any("error", err))
				}
				m.observe("error", "store failure")
				httpx.Error(w, http.StatusInternalServerError, "internal error")
				return
			}
			if !decision.Allowed {
				m.deny(w, decision)
				return
			}
			m.observe("allow", "")
			next.ServeHTTP(w, r)
		})
	}
}

// Deny writes the HTTP response for a denying decision. Exported so handlers
// running the ownership evaluator inline report denials identically.
func (m Middleware) Deny(w http.ResponseWriter, decision Decision) {
	m.deny(w, decision)
}

func (m Middleware) deny(w http.ResponseWriter, decision Decision) {
	m.observe("deny", string(decision.Reason))
	httpx.ErrorMissing(w, decision.Status(), string(decision.Reason), decision.Missing)
}

func (m Middleware) observe(outcome, reason string) {
	if m.Observer != nil {
		m.Observer.ObserveAuthz(outcome, reason)
	}
}
