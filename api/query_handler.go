package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/orcherr"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// Dispatcher runs a query across environments.
type Dispatcher interface {
	Dispatch(ctx context.Context, req schema.QueryRequest) (schema.AggregatedResult, error)
}

// QueryHandler wires the dispatcher and the registry it reads from.
type QueryHandler struct {
	dispatcher Dispatcher
	registry   dispatch.Snapshotter
}

type environmentList struct {
	Environments []schema.Environment `json:"environments"`
	Default      string               `json:"default,omitempty"`
}

type probeBody struct {
	EnvironmentIDs []string `json:"environmentIds"`
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path != "/environments" || r.Method != http.MethodGet {
		return false
	}
	if s.query.registry == nil {
		writeError(w, r, http.StatusNotImplemented, orcherr.OpsOrchError{Code: "registry_missing", Message: "environment registry not configured"})
		return true
	}
	snap := s.query.registry.Snapshot()
	out := environmentList{Environments: snap.ListEnvironments()}
	if def, ok := snap.GetDefault(); ok {
		out.Default = def.ID
	}
	writeJSON(w, http.StatusOK, out)
	return true
}

func (s *Server) handleEnvironmentTest(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path != "/environments/test" || r.Method != http.MethodPost {
		return false
	}
	if s.query.dispatcher == nil {
		writeError(w, r, http.StatusNotImplemented, orcherr.OpsOrchError{Code: "dispatcher_missing", Message: "query dispatcher not configured"})
		return true
	}
	var body probeBody
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, orcherr.OpsOrchError{Code: orcherr.CodeBadRequest, Message: err.Error()})
		return true
	}
	res, err := s.query.dispatcher.Dispatch(r.Context(), dispatch.ProbeRequest(body.EnvironmentIDs))
	if err != nil {
		writeDispatchError(w, r, err)
		return true
	}
	logAudit(r, "environments.test", zap.String("dispatch_id", res.DispatchID))
	writeJSON(w, http.StatusOK, res)
	return true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path != "/query" {
		return false
	}
	if s.query.dispatcher == nil {
		writeError(w, r, http.StatusNotImplemented, orcherr.OpsOrchError{Code: "dispatcher_missing", Message: "query dispatcher not configured"})
		return true
	}
	if r.Method != http.MethodPost {
		return false
	}
	var req schema.QueryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, orcherr.OpsOrchError{Code: orcherr.CodeBadRequest, Message: err.Error()})
		return true
	}
	res, err := s.query.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		writeDispatchError(w, r, err)
		return true
	}
	logAudit(r, "query.dispatch",
		zap.String("dispatch_id", res.DispatchID),
		zap.Int("environments", len(res.PerEnvironment)),
	)
	writeJSON(w, http.StatusOK, res)
	return true
}
