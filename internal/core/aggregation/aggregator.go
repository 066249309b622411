package aggregation

import (
	"github.com/shopspring/decimal"
)

// Aggregator defines the reduce semantics of a per-bucket operator.
// To add a new operator: implement this interface and register it in Operators.
type Aggregator interface {
	// Initial returns the aggregate value after the first reading of a bucket.
	// count → 1; everything else → the incoming value itself.
	Initial(incoming decimal.Decimal) decimal.Decimal

	// Apply folds the next reading (in timestamp order) into an existing aggregate.
	Apply(current, incoming decimal.Decimal) decimal.Decimal
}

// Operators is the registry of all supported bucket operators.
var Operators = map[string]Aggregator{
	OpCount: countAgg{},
	OpSum:   sumAgg{},
	OpMin:   minAgg{},
	OpMax:   maxAgg{},
	OpFirst: firstAgg{},
	OpLast:  lastAgg{},
}

// countAgg increments by 1 per reading. The incoming value is ignored.
type countAgg struct{}

func (countAgg) Initial(_ decimal.Decimal) decimal.Decimal    { return decimal.NewFromInt(1) }
func (countAgg) Apply(cur, _ decimal.Decimal) decimal.Decimal { return cur.Add(decimal.NewFromInt(1)) }

type sumAgg struct{}

func (sumAgg) Initial(v decimal.Decimal) decimal.Decimal      { return v }
func (sumAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal { return cur.Add(inc) }

type minAgg struct{}

func (minAgg) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (minAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.LessThan(cur) {
		return inc
	}
	return cur
}

type maxAgg struct{}

func (maxAgg) Initial(v decimal.Decimal) decimal.Decimal { return v }
func (maxAgg) Apply(cur, inc decimal.Decimal) decimal.Decimal {
	if inc.GreaterThan(cur) {
		return inc
	}
	return cur
}

// firstAgg keeps the earliest reading. Relies on timestamp-ordered input.
type firstAgg struct{}

func (firstAgg) Initial(v decimal.Decimal) decimal.Decimal    { return v }
func (firstAgg) Apply(cur, _ decimal.Decimal) decimal.Decimal { return cur }

// lastAgg keeps the latest reading. Relies on timestamp-ordered input.
type lastAgg struct{}

func (lastAgg) Initial(v decimal.Decimal) decimal.Decimal    { return v }
func (lastAgg) Apply(_, inc decimal.Decimal) decimal.Decimal { return inc }

// bucketOps are folded for every (device, bucket) group.
var bucketOps = []string{OpFirst, OpLast, OpCount, OpSum, OpMin, OpMax}

// accumulator folds the readings of one group through bucketOps.
type accumulator struct {
	values map[string]decimal.Decimal
}

func (a *accumulator) add(v decimal.Decimal) {
	if a.values == nil {
		a.values = make(map[string]decimal.Decimal, len(bucketOps))
		for _, op := range bucketOps {
			a.values[op] = Operators[op].Initial(v)
		}
		return
	}
	for _, op := range bucketOps {
		a.values[op] = Operators[op].Apply(a.values[op], v)
	}
}

func (a *accumulator) point(label string, mode Mode) Point {
	p := Point{
		Label: label,
		Count: a.values[OpCount].IntPart(),
		Sum:   a.values[OpSum],
		Min:   a.values[OpMin],
		Max:   a.values[OpMax],
	}
	if mode == ModeMean {
		p.Value = p.Mean()
	} else {
		p.Value = a.values[OpLast].Sub(a.values[OpFirst])
	}
	return p
}
