package aggregation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOperators_InitialAndApply(t *testing.T) {
	tests := []struct {
		name        string
		op          string
		incoming    decimal.Decimal
		current     decimal.Decimal
		next        decimal.Decimal
		wantInitial decimal.Decimal
		wantApply   decimal.Decimal
	}{
		{
			name:        "count",
			op:          OpCount,
			incoming:    decimal.NewFromInt(123),
			current:     decimal.NewFromInt(9),
			next:        decimal.NewFromInt(456),
			wantInitial: decimal.NewFromInt(1),
			wantApply:   decimal.NewFromInt(10),
		},
		{
			name:        "sum",
			op:          OpSum,
			incoming:    decimal.NewFromInt(3),
			current:     decimal.NewFromInt(9),
			next:        decimal.NewFromInt(4),
			wantInitial: decimal.NewFromInt(3),
			wantApply:   decimal.NewFromInt(13),
		},
		{
			name:        "min keeps lower",
			op:          OpMin,
			incoming:    decimal.NewFromInt(3),
			current:     decimal.NewFromInt(9),
			next:        decimal.NewFromInt(4),
			wantInitial: decimal.NewFromInt(3),
			wantApply:   decimal.NewFromInt(4),
		},
		{
			name:        "min keeps current when incoming is higher",
			op:          OpMin,
			incoming:    decimal.NewFromInt(3),
			current:     decimal.NewFromInt(4),
			next:        decimal.NewFromInt(9),
			wantInitial: decimal.NewFromInt(3),
			wantApply:   decimal.NewFromInt(4),
		},
		{
			name:        "max keeps higher",
			op:          OpMax,
			incoming:    decimal.NewFromInt(3),
			current:     decimal.NewFromInt(9),
			next:        decimal.NewFromInt(4),
			wantInitial: decimal.NewFromInt(3),
			wantApply:   decimal.NewFromInt(9),
		},
		{
			name:        "max takes incoming when incoming is higher",
			op:          OpMax,
			incoming:    decimal.NewFromInt(3),
			current:     decimal.NewFromInt(4),
			next:        decimal.NewFromInt(9),
			wantInitial: decimal.NewFromInt(3),
			wantApply:   decimal.NewFromInt(9),
		},
		{
			name:        "first ignores later readings",
			op:          OpFirst,
			incoming:    decimal.NewFromInt(100),
			current:     decimal.NewFromInt(100),
			next:        decimal.NewFromInt(120),
			wantInitial: decimal.NewFromInt(100),
			wantApply:   decimal.NewFromInt(100),
		},
		{
			name:        "last takes the newest reading",
			op:          OpLast,
			incoming:    decimal.NewFromInt(100),
			current:     decimal.NewFromInt(100),
			next:        decimal.NewFromInt(120),
			wantInitial: decimal.NewFromInt(100),
			wantApply:   decimal.NewFromInt(120),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			agg, ok := Operators[tc.op]
			require.True(t, ok)
			require.True(t, tc.wantInitial.Equal(agg.Initial(tc.incoming)))
			require.True(t, tc.wantApply.Equal(agg.Apply(tc.current, tc.next)))
		})
	}
}

func TestAccumulator_Point(t *testing.T) {
	var acc accumulator
	for _, v := range []int64{100, 130, 115} {
		acc.add(decimal.NewFromInt(v))
	}

	delta := acc.point("2024-03-01", ModeDelta)
	require.Equal(t, "2024-03-01", delta.Label)
	require.Equal(t, int64(3), delta.Count)
	require.True(t, decimal.NewFromInt(15).Equal(delta.Value), delta.Value.String())
	require.True(t, decimal.NewFromInt(100).Equal(delta.Min))
	require.True(t, decimal.NewFromInt(130).Equal(delta.Max))

	mean := acc.point("2024-03-01", ModeMean)
	require.True(t, decimal.NewFromFloat(115).Equal(mean.Value), mean.Value.String())
}
