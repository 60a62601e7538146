package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/biblio-sync/internal/api/common"
	"github.com/stacklok/biblio-sync/internal/registry"
	"github.com/stacklok/biblio-sync/internal/status"
	pkgsync "github.com/stacklok/biblio-sync/internal/sync"
)

type managerKey struct{}

// OperationResponse is returned by the per-article operations.
// Record is the state after the operation, also when it failed.
type OperationResponse struct {
	Record    *status.SyncRecord `json:"record,omitempty"`
	Error     string             `json:"error,omitempty"`
	ErrorKind string             `json:"errorKind,omitempty"`
}

// TickResponse is returned by the update route
type TickResponse struct {
	Report *pkgsync.TickReport `json:"report"`
	Error  string              `json:"error,omitempty"`
}

type targetRoutes struct {
	managers map[string]pkgsync.Manager
	order    []string
}

func newTargetRoutes(managers []pkgsync.Manager) *targetRoutes {
	routes := &targetRoutes{managers: make(map[string]pkgsync.Manager, len(managers))}
	for _, m := range managers {
		routes.managers[m.Target()] = m
		routes.order = append(routes.order, m.Target())
	}
	return routes
}

func (routes *targetRoutes) router(adminToken string) http.Handler {
	r := chi.NewRouter()

	r.Get("/", routes.listTargets)
	r.Route("/{target}", func(r chi.Router) {
		r.Use(routes.resolveTarget)
		r.Get("/", routes.getTarget)
		r.Get("/articles/{id}", routes.getRecord)

		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(adminToken))
			r.Post("/update", routes.update)
			r.Post("/mark-modified", routes.markModified)
			r.Post("/reset", routes.reset)
			r.Post("/articles/{id}/submit", routes.articleOperation(pkgsync.Manager.Submit))
			r.Post("/articles/{id}/identify", routes.articleOperation(pkgsync.Manager.Identify))
			r.Post("/articles/{id}/check", routes.articleOperation(pkgsync.Manager.CheckStatus))
			r.Delete("/articles/{id}", routes.articleOperation(pkgsync.Manager.Delete))
		})
	})

	return r
}

// resolveTarget stores the manager named by the {target} parameter in the request context
func (routes *targetRoutes) resolveTarget(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, err := common.GetAndValidateURLParam(r, "target")
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		m, ok := routes.managers[name]
		if !ok {
			common.WriteErrorResponse(w, "unknown target: "+name, http.StatusNotFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), managerKey{}, m)))
	})
}

func managerFrom(r *http.Request) pkgsync.Manager {
	return r.Context().Value(managerKey{}).(pkgsync.Manager)
}

func (routes *targetRoutes) listTargets(w http.ResponseWriter, r *http.Request) {
	summaries := make([]*pkgsync.Summary, 0, len(routes.order))
	for _, name := range routes.order {
		summary, err := routes.managers[name].Summary(r.Context())
		if err != nil {
			slog.Error("Failed to summarize target", "target", name, "error", err)
			common.WriteErrorResponse(w, "failed to summarize target "+name, http.StatusInternalServerError)
			return
		}
		summaries = append(summaries, summary)
	}
	common.WriteJSONResponse(w, summaries, http.StatusOK)
}

func (*targetRoutes) getTarget(w http.ResponseWriter, r *http.Request) {
	summary, err := managerFrom(r).Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.WriteJSONResponse(w, summary, http.StatusOK)
}

func (*targetRoutes) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := managerFrom(r).GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.WriteJSONResponse(w, rec, http.StatusOK)
}

func (*targetRoutes) update(w http.ResponseWriter, r *http.Request) {
	report, err := managerFrom(r).DoUpdate(r.Context())
	switch {
	case err == nil:
		common.WriteJSONResponse(w, TickResponse{Report: report}, http.StatusOK)
	case report != nil:
		// the tick ran but was aborted on a global failure
		common.WriteJSONResponse(w, TickResponse{Report: report, Error: err.Error()}, http.StatusBadGateway)
	default:
		writeError(w, err)
	}
}

func (*targetRoutes) markModified(w http.ResponseWriter, r *http.Request) {
	if err := managerFrom(r).MarkAllModified(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (*targetRoutes) reset(w http.ResponseWriter, r *http.Request) {
	keep, err := common.GetBoolQueryParam(r, "keepExternalId")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := managerFrom(r).ResetAll(r.Context(), keep); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type articleOp func(pkgsync.Manager, context.Context, string) (*status.SyncRecord, error)

func (*targetRoutes) articleOperation(op articleOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := common.GetAndValidateURLParam(r, "id")
		if err != nil {
			common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}

		rec, err := op(managerFrom(r), r.Context(), id)
		var regErr *registry.Error
		switch {
		case err == nil:
			common.WriteJSONResponse(w, OperationResponse{Record: rec}, http.StatusOK)
		case errors.As(err, &regErr):
			common.WriteJSONResponse(w, OperationResponse{
				Record:    rec,
				Error:     err.Error(),
				ErrorKind: string(regErr.Kind),
			}, statusForKind(regErr.Kind))
		default:
			writeError(w, err)
		}
	}
}

// statusForKind maps a registry failure onto the admin API response code
func statusForKind(kind registry.ErrorKind) int {
	switch kind {
	case registry.KindRender:
		return http.StatusUnprocessableEntity
	case registry.KindUnsupported:
		return http.StatusNotImplemented
	case registry.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgsync.ErrUpdateInProgress):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, pkgsync.ErrUnknownArticle):
		common.WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		common.WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("Admin request failed", "error", err)
		common.WriteErrorResponse(w, "internal error: "+err.Error(), http.StatusInternalServerError)
	}
}
