package api

import (
	"net/http"

	"github.com/opsorch/opsorch-multiquery/executor"
)

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) bool {
	if r.URL.Path != "/providers" || r.Method != http.MethodGet {
		return false
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": executor.Providers()})
	return true
}
