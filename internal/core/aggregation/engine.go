package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
)

type groupKey struct {
	deviceID string
	label    string
}

// Aggregate windows, orders, buckets and folds samples into series.
//
// Samples are stably sorted by (device, timestamp) before folding, so equal
// timestamps keep their store order. Buckets without samples are absent.
// With ScopePerDevice one series per device is returned, ordered by device
// id. With ScopeSummed a single series with an empty DeviceID is returned.
func Aggregate(samples []Sample, q Query) []Series {
	inWindow := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if q.Window.Contains(s.At) {
			inWindow = append(inWindow, s)
		}
	}

	sort.SliceStable(inWindow, func(i, j int) bool {
		if inWindow[i].DeviceID != inWindow[j].DeviceID {
			return inWindow[i].DeviceID < inWindow[j].DeviceID
		}
		return inWindow[i].At.Before(inWindow[j].At)
	})

	groups := make(map[groupKey]*accumulator)
	for _, s := range inWindow {
		key := groupKey{deviceID: s.DeviceID, label: q.Bucketer.Label(s.At)}
		acc, ok := groups[key]
		if !ok {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.add(s.Value)
	}

	byDevice := make(map[string][]Point)
	for key, acc := range groups {
		byDevice[key.deviceID] = append(byDevice[key.deviceID], acc.point(key.label, q.Mode))
	}

	deviceIDs := make([]string, 0, len(byDevice))
	for id := range byDevice {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	series := make([]Series, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		points := byDevice[id]
		sortPoints(q.Bucketer, points)
		series = append(series, Series{DeviceID: id, Points: points})
	}

	if q.Scope == ScopeSummed {
		return []Series{Merge(q.Bucketer, q.Mode, series)}
	}
	return series
}

// Merge sums series bucket by bucket. Delta values add up; for ModeMean the
// merged value is recomputed from the merged sum and count.
func Merge(b bucket.Bucketer, mode Mode, series []Series) Series {
	merged := make(map[string]Point)
	for _, s := range series {
		for _, p := range s.Points {
			cur, ok := merged[p.Label]
			if !ok {
				merged[p.Label] = p
				continue
			}
			cur.Value = cur.Value.Add(p.Value)
			cur.Count += p.Count
			cur.Sum = cur.Sum.Add(p.Sum)
			cur.Min = decimal.Min(cur.Min, p.Min)
			cur.Max = decimal.Max(cur.Max, p.Max)
			merged[p.Label] = cur
		}
	}

	points := make([]Point, 0, len(merged))
	for _, p := range merged {
		if mode == ModeMean {
			p.Value = p.Mean()
		}
		points = append(points, p)
	}
	sortPoints(b, points)
	return Series{Points: points}
}

// LatestSum adds up the value of each device's most recent sample. Ties on
// timestamp go to the sample later in input order. Returns zero for no input.
func LatestSum(samples []Sample) decimal.Decimal {
	latest := make(map[string]Sample)
	for _, s := range samples {
		cur, ok := latest[s.DeviceID]
		if !ok || !s.At.Before(cur.At) {
			latest[s.DeviceID] = s
		}
	}

	total := decimal.Zero
	for _, s := range latest {
		total = total.Add(s.Value)
	}
	return total
}

func sortPoints(b bucket.Bucketer, points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return b.Less(points[i].Label, points[j].Label)
	})
}
