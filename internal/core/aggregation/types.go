package aggregation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
)

// Supported per-bucket operators.
const (
	OpCount = "count"
	OpSum   = "sum"
	OpMin   = "min"
	OpMax   = "max"
	OpFirst = "first"
	OpLast  = "last"
)

// Mode selects what a bucket's value is.
type Mode string

const (
	// ModeDelta reports last − first of a cumulative counter per bucket.
	ModeDelta Mode = "delta"
	// ModeMean reports the mean of an instantaneous metric per bucket.
	ModeMean Mode = "mean"
)

// Scope selects whether devices are reported separately or summed.
type Scope string

const (
	ScopePerDevice Scope = "per_device"
	ScopeSummed    Scope = "summed"
)

// meanPlaces is the rounding applied to mean values.
const meanPlaces = 2

// Sample is a reading whose timestamp has been normalized.
type Sample struct {
	DeviceID string
	At       time.Time
	Value    decimal.Decimal
}

// Query parameterizes Aggregate.
type Query struct {
	Mode     Mode
	Scope    Scope
	Bucketer bucket.Bucketer
	Window   Window
}

// Point is one bucket of a series.
type Point struct {
	Label string
	// Value is the delta (ModeDelta) or the rounded mean (ModeMean).
	Value decimal.Decimal
	Count int64
	Sum   decimal.Decimal
	Min   decimal.Decimal
	Max   decimal.Decimal
}

// Mean is Sum/Count rounded half-to-even to two places.
func (p Point) Mean() decimal.Decimal {
	if p.Count == 0 {
		return decimal.Zero
	}
	return p.Sum.Div(decimal.NewFromInt(p.Count)).RoundBank(meanPlaces)
}

// Series is a bucket-ordered sequence of points. DeviceID is empty for a
// summed series.
type Series struct {
	DeviceID string
	Points   []Point
}
