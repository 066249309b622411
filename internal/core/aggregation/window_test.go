package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      time.Duration
		wantError bool
	}{
		{name: "hour", input: "6h", want: 6 * time.Hour},
		{name: "days suffix", input: "7d", want: 7 * 24 * time.Hour},
		{name: "empty invalid", input: "", wantError: true},
		{name: "negative invalid", input: "-1h", wantError: true},
		{name: "zero days invalid", input: "0d", wantError: true},
		{name: "bad day format invalid", input: "xd", wantError: true},
		{name: "unknown unit invalid", input: "10x", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.input)
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestWindow_ContainsIsInclusive(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	w := Window{From: from, To: to}

	require.True(t, w.Contains(from))
	require.True(t, w.Contains(to))
	require.False(t, w.Contains(from.Add(-time.Millisecond)))
	require.False(t, w.Contains(to.Add(time.Millisecond)))

	require.True(t, Window{}.Contains(time.Unix(0, 0)))
	require.True(t, Window{From: from}.Contains(to.AddDate(10, 0, 0)))
}

func TestWindow_Validate(t *testing.T) {
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, Window{From: from, To: from}.Validate())
	require.Error(t, Window{From: from, To: from.Add(-time.Hour)}.Validate())
	require.NoError(t, Window{To: from}.Validate())
}

func TestEndOfDay(t *testing.T) {
	got := EndOfDay(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	require.Equal(t, time.Date(2024, 5, 6, 23, 59, 59, 999000000, time.UTC), got)
}
