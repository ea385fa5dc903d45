// Package aggregate combines per-environment results into a single response.
package aggregate

import (
	"sort"

	"github.com/opsorch/opsorch-multiquery/schema"
)

// Aggregate builds an AggregatedResult from results in resolution order.
//
// Merge concatenates the rows of successful environments, each tagged with its
// environment id, without sorting or deduplicating across environments. Group keys every
// entry by environment id, failed and skipped ones included. Dispatch metadata (id, mode,
// time range, timestamp) is left for the caller to fill in.
func Aggregate(results []schema.EnvironmentQueryResult, mode schema.Aggregation) schema.AggregatedResult {
	if mode == "" {
		mode = schema.AggregateMerge
	}

	out := schema.AggregatedResult{
		Aggregate:      mode,
		PerEnvironment: results,
	}
	for _, r := range results {
		if r.Success {
			out.Success = true
		}
		if r.Attempted() {
			out.EnvironmentsQueried++
		}
	}

	switch mode {
	case schema.AggregateGroup:
		out.Groups = group(results)
	default:
		out.Rows, out.Fields = merge(results)
	}
	return out
}

func merge(results []schema.EnvironmentQueryResult) ([]schema.TaggedRow, []string) {
	total := 0
	for _, r := range results {
		if r.Success {
			total += len(r.Rows)
		}
	}

	rows := make([]schema.TaggedRow, 0, total)
	fieldSet := make(map[string]struct{})
	for _, r := range results {
		if !r.Success {
			continue
		}
		for _, row := range r.Rows {
			rows = append(rows, schema.TaggedRow{EnvironmentID: r.EnvironmentID, Data: row})
		}
		for _, f := range r.Fields {
			fieldSet[f] = struct{}{}
		}
	}

	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return rows, fields
}

func group(results []schema.EnvironmentQueryResult) map[string]schema.EnvironmentQueryResult {
	groups := make(map[string]schema.EnvironmentQueryResult, len(results))
	for _, r := range results {
		groups[r.EnvironmentID] = r
	}
	return groups
}
