package aggregation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
	"github.com/stretchr/testify/require"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func sample(device string, ts time.Time, v string) Sample {
	return Sample{DeviceID: device, At: ts, Value: decimal.RequireFromString(v)}
}

func daily(mode Mode, scope Scope) Query {
	return Query{Mode: mode, Scope: scope, Bucketer: bucket.New(bucket.Day, "")}
}

func requireValue(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAggregate_DeltaPerBucket(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "100"),
		sample("A", at(1, 12), "120"),
		sample("A", at(2, 0), "130"),
		sample("A", at(2, 23), "160"),
	}

	series := Aggregate(samples, daily(ModeDelta, ScopePerDevice))
	require.Len(t, series, 1)
	require.Equal(t, "A", series[0].DeviceID)
	require.Len(t, series[0].Points, 2)

	require.Equal(t, "2024-01-01", series[0].Points[0].Label)
	requireValue(t, "20", series[0].Points[0].Value)
	require.Equal(t, "2024-01-02", series[0].Points[1].Label)
	requireValue(t, "30", series[0].Points[1].Value)

	// 120 → 130 straddles the boundary and is in neither bucket.
	total := series[0].Points[0].Value.Add(series[0].Points[1].Value)
	requireValue(t, "50", total)
}

func TestAggregate_SummedAcrossDevices(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "100"),
		sample("A", at(1, 12), "120"),
		sample("B", at(1, 0), "50"),
		sample("B", at(1, 6), "55"),
	}

	series := Aggregate(samples, daily(ModeDelta, ScopeSummed))
	require.Len(t, series, 1)
	require.Empty(t, series[0].DeviceID)
	require.Len(t, series[0].Points, 1)
	requireValue(t, "25", series[0].Points[0].Value)
}

func TestAggregate_UnorderedInputIsSorted(t *testing.T) {
	ordered := []Sample{
		sample("A", at(1, 0), "100"),
		sample("A", at(1, 6), "110"),
		sample("A", at(1, 12), "120"),
	}
	shuffled := []Sample{ordered[2], ordered[0], ordered[1]}

	a := Aggregate(ordered, daily(ModeDelta, ScopePerDevice))
	b := Aggregate(shuffled, daily(ModeDelta, ScopePerDevice))
	require.Equal(t, a, b)
	requireValue(t, "20", b[0].Points[0].Value)
}

func TestAggregate_SingleReadingBucketIsZero(t *testing.T) {
	series := Aggregate([]Sample{sample("A", at(1, 0), "100")}, daily(ModeDelta, ScopePerDevice))
	require.Len(t, series[0].Points, 1)
	requireValue(t, "0", series[0].Points[0].Value)
	require.Equal(t, int64(1), series[0].Points[0].Count)
}

func TestAggregate_WindowIsInclusive(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "90"),
		sample("A", at(1, 6), "100"),
		sample("A", at(1, 12), "120"),
		sample("A", at(1, 18), "150"),
	}
	q := daily(ModeDelta, ScopePerDevice)
	q.Window = Window{From: at(1, 6), To: at(1, 12)}

	series := Aggregate(samples, q)
	requireValue(t, "20", series[0].Points[0].Value)
	require.Equal(t, int64(2), series[0].Points[0].Count)
}

func TestAggregate_EmptyInput(t *testing.T) {
	require.Empty(t, Aggregate(nil, daily(ModeDelta, ScopePerDevice)))

	summed := Aggregate(nil, daily(ModeDelta, ScopeSummed))
	require.Len(t, summed, 1)
	require.Empty(t, summed[0].Points)
}

func TestAggregate_NegativeDeltaIsReported(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "500"),
		sample("A", at(1, 12), "3"),
	}
	series := Aggregate(samples, daily(ModeDelta, ScopePerDevice))
	requireValue(t, "-497", series[0].Points[0].Value)
}

func TestAggregate_DevicesOrderedByID(t *testing.T) {
	samples := []Sample{
		sample("zeta", at(1, 0), "1"),
		sample("alpha", at(1, 0), "1"),
		sample("mid", at(1, 0), "1"),
	}
	series := Aggregate(samples, daily(ModeDelta, ScopePerDevice))
	require.Equal(t, []string{"alpha", "mid", "zeta"}, []string{series[0].DeviceID, series[1].DeviceID, series[2].DeviceID})
}

func TestAggregate_MeanRoundsToTwoPlaces(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 1), "1"),
		sample("A", at(1, 2), "2"),
		sample("A", at(1, 3), "3"),
		sample("A", at(2, 1), "1"),
		sample("A", at(2, 2), "1"),
		sample("A", at(2, 3), "2"),
	}

	series := Aggregate(samples, daily(ModeMean, ScopePerDevice))
	points := series[0].Points
	require.Len(t, points, 2)

	require.Equal(t, "2.00", points[0].Value.StringFixed(2))
	require.Equal(t, int64(3), points[0].Count)
	requireValue(t, "1", points[0].Min)
	requireValue(t, "3", points[0].Max)

	require.Equal(t, "1.33", points[1].Value.StringFixed(2))
}

func TestAggregate_HourlyBuckets(t *testing.T) {
	samples := []Sample{
		sample("A", time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC), "10"),
		sample("A", time.Date(2024, 1, 1, 10, 55, 0, 0, time.UTC), "14"),
		sample("A", time.Date(2024, 1, 1, 9, 10, 0, 0, time.UTC), "1"),
		sample("A", time.Date(2024, 1, 1, 9, 50, 0, 0, time.UTC), "3"),
	}
	q := Query{Mode: ModeDelta, Scope: ScopePerDevice, Bucketer: bucket.New(bucket.Hour, "")}

	points := Aggregate(samples, q)[0].Points
	require.Equal(t, "2024-01-01 09:00:00", points[0].Label)
	requireValue(t, "2", points[0].Value)
	require.Equal(t, "2024-01-01 10:00:00", points[1].Label)
	requireValue(t, "4", points[1].Value)
}

func TestMerge_IsOrderIndependent(t *testing.T) {
	b := bucket.New(bucket.Day, "")
	s1 := Series{Points: []Point{
		{Label: "2024-01-02", Value: decimal.RequireFromString("0.1")},
		{Label: "2024-01-01", Value: decimal.RequireFromString("0.2")},
	}}
	s2 := Series{Points: []Point{
		{Label: "2024-01-01", Value: decimal.RequireFromString("0.1")},
	}}

	m1 := Merge(b, ModeDelta, []Series{s1, s2})
	m2 := Merge(b, ModeDelta, []Series{s2, s1})

	require.Equal(t, "2024-01-01", m1.Points[0].Label)
	requireValue(t, "0.3", m1.Points[0].Value)
	requireValue(t, "0.1", m1.Points[1].Value)
	require.True(t, m1.Points[0].Value.Equal(m2.Points[0].Value))
	require.True(t, m1.Points[1].Value.Equal(m2.Points[1].Value))
}

func TestLatestSum(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "100"),
		sample("A", at(3, 0), "300"),
		sample("A", at(2, 0), "200"),
		sample("B", at(1, 0), "40"),
	}
	requireValue(t, "340", LatestSum(samples))
	requireValue(t, "0", LatestSum(nil))
}

func TestLatestSum_TieGoesToLaterInput(t *testing.T) {
	samples := []Sample{
		sample("A", at(1, 0), "100"),
		sample("A", at(1, 0), "101"),
	}
	requireValue(t, "101", LatestSum(samples))
}
