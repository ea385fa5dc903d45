package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/opsorch/opsorch-multiquery/logging"
	"github.com/opsorch/opsorch-multiquery/orcherr"
)

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err orcherr.OpsOrchError) {
	logging.FromContext(r.Context()).Info("API error",
		zap.Int("status", status),
		zap.String("code", err.Code),
		zap.String("message", err.Message),
	)
	writeJSON(w, status, map[string]string{"code": err.Code, "message": err.Message})
}

// statusForCode maps request-level error codes onto HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case orcherr.CodeInvalidMode, orcherr.CodeBadRequest, orcherr.CodeNoEnvironments:
		return http.StatusBadRequest
	case orcherr.CodeUnknownEnvironment:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	if oe, ok := orcherr.As(err); ok {
		writeError(w, r, statusForCode(oe.Code), oe)
		return
	}
	logging.FromContext(r.Context()).Error("Dispatch error (non-OpsOrchError)", zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, orcherr.OpsOrchError{Code: "internal_error", Message: err.Error()})
}
