package schema

import (
	"encoding/json"
	"time"
)

// Row is one record returned by a backend; keys are backend field names.
type Row map[string]any

// RowSet is what an executor returns for a single environment.
type RowSet struct {
	Fields []string `json:"fields,omitempty"`
	Rows   []Row    `json:"rows"`
}

// ErrorKind classifies a per-environment failure.
type ErrorKind string

const (
	ErrorTimeout            ErrorKind = "timeout"
	ErrorAuthFailure        ErrorKind = "auth_failure"
	ErrorBackend            ErrorKind = "backend_error"
	ErrorMalformedResponse  ErrorKind = "malformed_response"
	ErrorSkipped            ErrorKind = "skipped"
	ErrorUnknownEnvironment ErrorKind = "unknown_environment"
	ErrorCanceled           ErrorKind = "canceled"
)

// EnvironmentQueryResult is the outcome of one environment within a dispatch.
// Rows and Fields are set iff Success; ErrorKind and ErrorMessage iff not.
type EnvironmentQueryResult struct {
	EnvironmentID   string    `json:"environmentId"`
	EnvironmentName string    `json:"environmentName"`
	Success         bool      `json:"success"`
	Rows            []Row     `json:"rows,omitempty"`
	Fields          []string  `json:"fields,omitempty"`
	ErrorKind       ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
}

// Attempted reports whether the executor was actually invoked for this environment.
func (r EnvironmentQueryResult) Attempted() bool {
	return r.Success || (r.ErrorKind != ErrorSkipped && r.ErrorKind != ErrorUnknownEnvironment)
}

// TaggedRow is a merged row annotated with the environment it came from.
type TaggedRow struct {
	EnvironmentID string `json:"environmentId"`
	Data          Row    `json:"data"`
}

// AggregatedResult is the response of a dispatch.
//
// Success is true when at least one environment succeeded; callers must still inspect
// PerEnvironment for partial failures. Rows and Fields are set for merge, Groups for group.
type AggregatedResult struct {
	DispatchID          string                            `json:"dispatchId"`
	Success             bool                              `json:"success"`
	Mode                Mode                              `json:"mode"`
	Aggregate           Aggregation                       `json:"aggregate"`
	EnvironmentsQueried int                               `json:"environmentsQueried"`
	PerEnvironment      []EnvironmentQueryResult          `json:"perEnvironment"`
	Rows                []TaggedRow                       `json:"rows"`
	Fields              []string                          `json:"fields,omitempty"`
	Groups              map[string]EnvironmentQueryResult `json:"groups,omitempty"`
	TimeRange           TimeRange                         `json:"timeRange"`
	Timestamp           time.Time                         `json:"timestamp"`
}

// MarshalJSON always writes rows for merge results, empty or not, and leaves them out of group results.
func (r AggregatedResult) MarshalJSON() ([]byte, error) {
	type plain AggregatedResult
	if r.Aggregate != AggregateGroup {
		if r.Rows == nil {
			r.Rows = []TaggedRow{}
		}
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Rows []TaggedRow `json:"rows,omitempty"`
	}{plain: plain(r)})
}
