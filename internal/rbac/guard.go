package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/uhmwpe-lab/labdata/internal/platform/httpx"
	"github.com/uhmwpe-lab/labdata/internal/shared"
)

// Guard denial signals.
var (
	ErrUnauthenticated = errors.New("rbac: unauthenticated")
	ErrForbidden       = errors.New("rbac: forbidden")
)

// Checker answers single permission questions. *Engine implements it.
type Checker interface {
	CheckPermission(ctx context.Context, userID int64, moduleName string, action Action) bool
}

// Predicate inspects a request before the guarded handler runs. A non-nil result is one
// of ErrUnauthenticated or ErrForbidden.
type Predicate func(r *http.Request) error

// Guard is the enforcement point in front of protected handlers. It does not log or
// mutate persistent state. A denial is noted on the request context for metrics.
type Guard struct {
	checker Checker
}

// NewGuard builds a Guard around a Checker.
func NewGuard(checker Checker) Guard {
	return Guard{checker: checker}
}

// Authenticated requires a session bound to a user id.
func (g Guard) Authenticated() Predicate {
	return func(r *http.Request) error {
		if _, ok := shared.CurrentUserID(r.Context()); !ok {
			return ErrUnauthenticated
		}
		return nil
	}
}

// Authorized requires every listed (module, action) pair. An unauthenticated caller is
// still reported as unauthenticated, so the predicate is safe on its own.
func (g Guard) Authorized(reqs ...Requirement) Predicate {
	reqs = append([]Requirement(nil), reqs...)
	return func(r *http.Request) error {
		userID, ok := shared.CurrentUserID(r.Context())
		if !ok {
			return ErrUnauthenticated
		}
		for _, req := range reqs {
			if !g.checker.CheckPermission(r.Context(), userID, req.Module, req.Action) {
				return ErrForbidden
			}
		}
		return nil
	}
}

// Chain evaluates predicates in order and stops at the first failure, before next runs.
func (g Guard) Chain(preds ...Predicate) func(http.Handler) http.Handler {
	preds = append([]Predicate(nil), preds...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, pred := range preds {
				if err := pred(r); err != nil {
					WriteDenial(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require is the usual composition: authentication, then all requirements.
// With no requirements only a session is needed.
func (g Guard) Require(reqs ...Requirement) func(http.Handler) http.Handler {
	return g.Chain(g.Authenticated(), g.Authorized(reqs...))
}

// Check runs the same ordered evaluation inside a handler, for operations whose module is
// only known after loading a record.
func (g Guard) Check(r *http.Request, reqs ...Requirement) error {
	if err := g.Authenticated()(r); err != nil {
		return err
	}
	return g.Authorized(reqs...)(r)
}

// WriteDenial renders a guard signal as problem JSON and notes it on r's context.
func WriteDenial(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrUnauthenticated) {
		shared.NoteDenial(r.Context(), httpx.TypeUnauthenticated)
		httpx.Problem(w, http.StatusUnauthorized, httpx.TypeUnauthenticated, "Unauthenticated", "login required")
		return
	}
	shared.NoteDenial(r.Context(), httpx.TypeForbidden)
	httpx.Problem(w, http.StatusForbidden, httpx.TypeForbidden, "Forbidden", "insufficient permission")
}
