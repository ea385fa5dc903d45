package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRelativeRange is applied when a request carries no time range.
const DefaultRelativeRange = "60m"

var relativeRangePattern = regexp.MustCompile(`^(\d+)([mhd])$`)

// TimeRange is either an absolute [Start, End] window or a relative look-back such as "24h".
//
// Example:
//
//	{"relative": "7d"}
//	{"start": "2023-10-01T00:00:00Z", "end": "2023-10-01T01:00:00Z"}
type TimeRange struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Relative string    `json:"relative,omitempty"`
}

// MarshalJSON writes only the bounds that are set, so a relative range carries no zero timestamps.
func (tr TimeRange) MarshalJSON() ([]byte, error) {
	var out struct {
		Start    *time.Time `json:"start,omitempty"`
		End      *time.Time `json:"end,omitempty"`
		Relative string     `json:"relative,omitempty"`
	}
	if !tr.Start.IsZero() {
		out.Start = &tr.Start
	}
	if !tr.End.IsZero() {
		out.End = &tr.End
	}
	out.Relative = tr.Relative
	return json.Marshal(out)
}

// ParseTimeRange parses a relative descriptor: a positive integer followed by m, h or d.
// An empty string yields DefaultRelativeRange.
func ParseTimeRange(raw string) (TimeRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultRelativeRange
	}
	if _, err := relativeDuration(raw); err != nil {
		return TimeRange{}, err
	}
	return TimeRange{Relative: raw}, nil
}

// IsZero reports whether neither bound nor a relative range is set.
func (tr TimeRange) IsZero() bool {
	return tr.Relative == "" && tr.Start.IsZero() && tr.End.IsZero()
}

// Validate checks the range is usable.
func (tr TimeRange) Validate() error {
	if tr.Relative != "" {
		if !tr.Start.IsZero() || !tr.End.IsZero() {
			return fmt.Errorf("time range: relative and absolute bounds are mutually exclusive")
		}
		_, err := relativeDuration(tr.Relative)
		return err
	}
	if tr.Start.IsZero() || tr.End.IsZero() {
		return fmt.Errorf("time range: start and end are both required")
	}
	if tr.End.Before(tr.Start) {
		return fmt.Errorf("time range: end %s is before start %s", tr.End.Format(time.RFC3339), tr.Start.Format(time.RFC3339))
	}
	return nil
}

// Resolve converts the range into absolute bounds relative to now.
func (tr TimeRange) Resolve(now time.Time) (time.Time, time.Time, error) {
	if err := tr.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if tr.Relative == "" {
		return tr.Start, tr.End, nil
	}
	d, _ := relativeDuration(tr.Relative)
	return now.Add(-d), now, nil
}

// String renders the range for logs and error messages.
func (tr TimeRange) String() string {
	if tr.Relative != "" {
		return tr.Relative
	}
	return tr.Start.Format(time.RFC3339) + "/" + tr.End.Format(time.RFC3339)
}

func relativeDuration(raw string) (time.Duration, error) {
	m := relativeRangePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("time range: invalid relative range %q (want e.g. 60m, 24h, 7d)", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("time range: invalid relative range %q", raw)
	}
	unit := time.Minute
	switch m[2] {
	case "h":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("time range: relative range %q is too large", raw)
	}
	return time.Duration(n) * unit, nil
}
