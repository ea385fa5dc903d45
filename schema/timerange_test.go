package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeRange(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "", want: DefaultRelativeRange},
		{raw: "15m", want: "15m"},
		{raw: " 24h ", want: "24h"},
		{raw: "7d", want: "7d"},
		{raw: "0h", wantErr: true},
		{raw: "2w", wantErr: true},
		{raw: "-1h", wantErr: true},
		{raw: "h", wantErr: true},
		{raw: "106751d", want: "106751d"},
		{raw: "106752d", wantErr: true},
		{raw: "999999999d", wantErr: true},
		{raw: "99999999999999999999m", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			tr, err := ParseTimeRange(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Relative)
		})
	}
}

func TestTimeRangeResolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	start, end, err := TimeRange{Relative: "2d"}.Resolve(now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-48*time.Hour), start)
	assert.Equal(t, now, end)

	abs := TimeRange{Start: now.Add(-time.Hour), End: now}
	start, end, err = abs.Resolve(time.Time{})
	require.NoError(t, err)
	assert.Equal(t, abs.Start, start)
	assert.Equal(t, abs.End, end)
	assert.Equal(t, "2026-03-01T11:00:00Z/2026-03-01T12:00:00Z", abs.String())
}

func TestTimeRangeValidate(t *testing.T) {
	now := time.Now()
	assert.Error(t, TimeRange{Start: now}.Validate())
	assert.Error(t, TimeRange{Start: now, End: now.Add(-time.Minute)}.Validate())
	assert.Error(t, TimeRange{Relative: "1h", End: now}.Validate())
	assert.NoError(t, TimeRange{Start: now, End: now}.Validate())
	assert.True(t, TimeRange{}.IsZero())
}

func TestTimeRangeJSON(t *testing.T) {
	raw, err := json.Marshal(TimeRange{Relative: "1h"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"relative":"1h"}`, string(raw))

	start := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	abs := TimeRange{Start: start, End: start.Add(time.Hour)}
	raw, err = json.Marshal(abs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2023-10-01T00:00:00Z","end":"2023-10-01T01:00:00Z"}`, string(raw))

	var back TimeRange
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, abs.Start.Equal(back.Start))
	assert.True(t, abs.End.Equal(back.End))
	assert.Empty(t, back.Relative)

	raw, err = json.Marshal(TimeRange{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(raw))
}
