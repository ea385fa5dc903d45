package schema

// Mode selects the concurrency discipline of a dispatch.
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSingle, ModeParallel, ModeSequential:
		return true
	}
	return false
}

// Aggregation selects how per-environment results are combined.
type Aggregation string

const (
	AggregateMerge Aggregation = "merge"
	AggregateGroup Aggregation = "group"
)

// Valid reports whether a is a known aggregation.
func (a Aggregation) Valid() bool {
	return a == AggregateMerge || a == AggregateGroup
}

// QueryRequest is one logical query fanned out to a set of environments.
//
// Example:
//
//	{
//	  "query": "'Log Source' = 'OCI Audit Logs' | stats count by 'Event Name'",
//	  "timeRange": {"relative": "24h"},
//	  "targetEnvironmentIds": ["fra", "iad"],
//	  "mode": "parallel",
//	  "parallelismLimit": 4,
//	  "perCallTimeout": "45s",
//	  "continueOnError": true,
//	  "aggregate": "merge"
//	}
type QueryRequest struct {
	Query                string      `json:"query"`
	TimeRange            TimeRange   `json:"timeRange"`
	TargetEnvironmentIDs []string    `json:"targetEnvironmentIds,omitempty"` // empty means all active
	Mode                 Mode        `json:"mode,omitempty"`
	ParallelismLimit     int         `json:"parallelismLimit,omitempty"` // parallel mode only; 0 uses the default
	PerCallTimeout       Duration    `json:"perCallTimeout,omitempty"`   // 0 uses the default
	ContinueOnError      bool        `json:"continueOnError,omitempty"`
	Aggregate            Aggregation `json:"aggregate,omitempty"`
}
