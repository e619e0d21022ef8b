package wage

import (
	"errors"
	"math"
	"testing"

	"opsboard/internal/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(a []int64) int64 {
	var s int64
	for _, v := range a {
		s += v
	}
	return s
}

func TestInitialSplit(t *testing.T) {
	tests := []struct {
		name  string
		total int64
		n     int
		want  []int64
	}{
		{"even", 900, 3, []int64{300, 300, 300}},
		{"remainder to first", 1000, 3, []int64{334, 333, 333}},
		{"single participant", 777, 1, []int64{777}},
		{"total smaller than n", 2, 3, []int64{2, 0, 0}},
		{"zero total", 0, 2, []int64{0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InitialSplit(tt.total, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.total, sum(got))
		})
	}
}

func TestInitialSplit_SumAlwaysEqualsTotal(t *testing.T) {
	for total := int64(0); total < 250; total += 7 {
		for n := 1; n <= 9; n++ {
			got, err := InitialSplit(total, n)
			require.NoError(t, err)
			assert.Equal(t, total, sum(got), "total=%d n=%d", total, n)
		}
	}
}

func TestInitialSplit_Invalid(t *testing.T) {
	_, err := InitialSplit(100, 0)
	assert.True(t, errors.Is(err, apperror.ErrInvalidInput))

	_, err = InitialSplit(-1, 2)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestRedistribute(t *testing.T) {
	tests := []struct {
		name     string
		amounts  []int64
		index    int
		newValue int64
		want     []int64
	}{
		{"edit first of three", []int64{334, 333, 333}, 0, 500, []int64{500, 250, 250}},
		{"leftover to first other", []int64{334, 333, 333}, 0, 499, []int64{499, 251, 250}},
		{"edit middle leftover to index 0", []int64{334, 333, 333}, 1, 0, []int64{500, 0, 500}},
		{"value above total is clamped", []int64{334, 333, 333}, 2, 5000, []int64{0, 0, 1000}},
		{"negative value is clamped to zero", []int64{300, 300}, 0, -40, []int64{0, 600}},
		{"single participant keeps total", []int64{700}, 0, 100, []int64{700}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Redistribute(tt.amounts, tt.index, tt.newValue)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, sum(tt.amounts), sum(got))
		})
	}
}

func TestRedistribute_PreservesSumAndNonNegative(t *testing.T) {
	start := []int64{1000, 0, 5, 17, 3}
	for idx := range start {
		for _, v := range []int64{-10, 0, 1, 7, 512, 1025, 1 << 40} {
			got, err := Redistribute(start, idx, v)
			require.NoError(t, err)
			assert.Equal(t, sum(start), sum(got))
			for j, a := range got {
				assert.GreaterOrEqual(t, a, int64(0), "index %d", j)
			}
		}
	}
}

func TestRedistribute_DoesNotMutateInput(t *testing.T) {
	in := []int64{334, 333, 333}
	_, err := Redistribute(in, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, []int64{334, 333, 333}, in)
}

func TestRedistribute_Invalid(t *testing.T) {
	_, err := Redistribute(nil, 0, 1)
	assert.Error(t, err)

	_, err = Redistribute([]int64{1, 2}, 2, 1)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = Redistribute([]int64{1, -2}, 0, 1)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestBatchTotal(t *testing.T) {
	total, err := BatchTotal([]Line{
		{Units: 120, Rate: decimal.RequireFromString("2.5")},
		{Units: 3, Rate: decimal.RequireFromString("0.5")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(302), total) // 300 + 1.5 rounded half up

	_, err = BatchTotal([]Line{{Units: -1, Rate: decimal.NewFromInt(1)}})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = BatchTotal([]Line{{Units: math.MaxInt64, Rate: decimal.NewFromInt(2)}})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(600, []int64{300, 300}))
	assert.Error(t, Validate(600, []int64{300, 299}))
	assert.Error(t, Validate(0, []int64{1, -1}))

	err := Validate(1000, []int64{math.MaxInt64, math.MaxInt64, 1002})
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Error(t, Validate(1000, []int64{1001, 0}))
}

func TestAdd(t *testing.T) {
	sum, ok := Add(40, 2)
	assert.True(t, ok)
	assert.Equal(t, int64(42), sum)

	_, ok = Add(math.MaxInt64, 1)
	assert.False(t, ok)
	_, ok = Add(math.MinInt64, -1)
	assert.False(t, ok)

	sum, ok = Add(math.MaxInt64, math.MinInt64)
	assert.True(t, ok)
	assert.Equal(t, int64(-1), sum)
}

func TestRedistribute_RejectsOverflowingShares(t *testing.T) {
	_, err := Redistribute([]int64{math.MaxInt64, 1}, 0, 0)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}
