package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

type rpcRequest struct {
	Method  string          `json:"method"`
	Config  map[string]any  `json:"config"`
	Payload json.RawMessage `json:"payload"`
}

type rpcError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type Environment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Region      string `json:"region,omitempty"`
	TenantScope struct {
		CompartmentID string `json:"compartmentId,omitempty"`
		Namespace     string `json:"namespace,omitempty"`
	} `json:"tenantScope"`
}

type ExecutePayload struct {
	Environment Environment `json:"environment"`
	Query       string      `json:"query"`
	TimeRange   struct {
		Relative string `json:"relative,omitempty"`
	} `json:"timeRange"`
}

type RowSet struct {
	Fields []string         `json:"fields,omitempty"`
	Rows   []map[string]any `json:"rows"`
}

// Queries steer the mock: "fail:<code>" returns that error code, "sleep:<duration>" delays
// the answer, "garbage" writes a non-JSON line. Anything else yields two rows.
func main() {
	dec := json.NewDecoder(os.Stdin)
	for {
		var req rpcRequest
		if err := dec.Decode(&req); err != nil {
			if err.Error() == "EOF" {
				return
			}
			writeErr("", err)
			return
		}

		switch req.Method {
		case "query.execute":
			var p ExecutePayload
			if err := json.Unmarshal(req.Payload, &p); err != nil {
				writeErr("malformed_response", err)
				continue
			}
			handleExecute(p)
		default:
			writeErr("", fmt.Errorf("unknown method %s", req.Method))
		}
	}
}

func handleExecute(p ExecutePayload) {
	switch {
	case strings.HasPrefix(p.Query, "fail:"):
		writeErr(strings.TrimPrefix(p.Query, "fail:"), fmt.Errorf("mock failure for %s", p.Environment.ID))
		return
	case strings.HasPrefix(p.Query, "sleep:"):
		d, err := time.ParseDuration(strings.TrimPrefix(p.Query, "sleep:"))
		if err != nil {
			writeErr("", err)
			return
		}
		time.Sleep(d)
	case p.Query == "garbage":
		fmt.Fprintln(os.Stdout, "{not json")
		return
	}

	writeOK(RowSet{
		Fields: []string{"Environment", "Namespace", "Query"},
		Rows: []map[string]any{
			{"Environment": p.Environment.ID, "Namespace": p.Environment.TenantScope.Namespace, "Query": p.Query},
			{"Environment": p.Environment.ID, "Namespace": p.Environment.TenantScope.Namespace, "Query": p.Query, "TimeRange": p.TimeRange.Relative},
		},
	})
}

func writeOK(result any) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rpcResponse{Result: result})
}

func writeErr(code string, err error) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rpcResponse{Error: &rpcError{Code: code, Message: err.Error()}})
}
