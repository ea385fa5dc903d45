package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsorch/opsorch-multiquery/orcherr"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// StaticEnvironment is the canned outcome for one environment.
type StaticEnvironment struct {
	Fields []string        `json:"fields,omitempty"`
	Rows   []schema.Row    `json:"rows,omitempty"`
	Error  string          `json:"error,omitempty"` // orcherr executor code
	Delay  schema.Duration `json:"delay,omitempty"`
}

// StaticExecutor answers every query from fixed per-environment fixtures. Environments
// without a fixture return an empty row set.
type StaticExecutor struct {
	Environments map[string]StaticEnvironment `json:"environments"`
}

// Execute implements Executor.
func (s StaticExecutor) Execute(ctx context.Context, env schema.Environment, query string, tr schema.TimeRange) (schema.RowSet, error) {
	fixture := s.Environments[env.ID]
	if fixture.Delay > 0 {
		timer := time.NewTimer(time.Duration(fixture.Delay))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return schema.RowSet{}, ctx.Err()
		case <-timer.C:
		}
	}
	if fixture.Error != "" {
		return schema.RowSet{}, orcherr.New(fixture.Error, fmt.Sprintf("static fixture for %s", env.ID), nil)
	}
	rows := fixture.Rows
	if rows == nil {
		rows = []schema.Row{}
	}
	return schema.RowSet{Fields: fixture.Fields, Rows: rows}, nil
}

// NewStaticProvider is the "static" adapter constructor. The config mirrors StaticExecutor:
//
//	{"environments": {"fra": {"rows": [{"Event Name": "Login"}], "fields": ["Event Name"]},
//	                  "iad": {"error": "auth_failure"}}}
func NewStaticProvider(config map[string]any) (Executor, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("static executor config: %w", err)
	}
	var s StaticExecutor
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("static executor config: %w", err)
	}
	return s, nil
}

func init() {
	_ = RegisterProvider("static", NewStaticProvider)
}
