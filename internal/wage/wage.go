// Package wage splits a fixed batch wage across participants.
//
// Every function keeps sum(shares) equal to the batch total and never produces a
// negative share. Remainders from integer division go to a deterministic
// participant: the first one for an initial split, the first non-edited one after
// a redistribution.
package wage

import (
	"math"

	"opsboard/internal/apperror"

	"github.com/shopspring/decimal"
)

// Line is one unit count priced at a per-unit rate, e.g. 120 bricks at 2.50.
type Line struct {
	Units int64           `json:"units" validate:"gte=0"`
	Rate  decimal.Decimal `json:"rate"`
}

// BatchTotal prices the lines and rounds to the smallest currency unit (half up).
func BatchTotal(lines []Line) (int64, error) {
	total := decimal.Zero
	for i, l := range lines {
		if l.Units < 0 {
			return 0, apperror.Validation("line %d: units must not be negative", i)
		}
		if l.Rate.IsNegative() {
			return 0, apperror.Validation("line %d: rate must not be negative", i)
		}
		total = total.Add(l.Rate.Mul(decimal.NewFromInt(l.Units)))
	}
	total = total.Round(0)
	if total.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, apperror.Validation("batch total %s exceeds the supported range", total)
	}
	return total.IntPart(), nil
}

// Add returns a+b, or false when the sum does not fit in an int64.
func Add(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// InitialSplit gives every participant floor(total/n) and the remainder to the first.
func InitialSplit(total int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, apperror.Validation("at least one participant is required")
	}
	if total < 0 {
		return nil, apperror.Validation("total must not be negative")
	}

	share := total / int64(n)
	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = share
	}
	amounts[0] += total - share*int64(n)
	return amounts, nil
}

// Redistribute sets the edited share and spreads what is left of the total equally
// over the other participants. The edited value is clamped into [0, total], so a value
// above the total leaves the others at zero instead of driving them negative.
// With a single participant the share stays equal to the total.
func Redistribute(amounts []int64, editedIndex int, newValue int64) ([]int64, error) {
	n := len(amounts)
	if n == 0 {
		return nil, apperror.Validation("at least one participant is required")
	}
	if editedIndex < 0 || editedIndex >= n {
		return nil, apperror.Validation("edited index %d out of range [0,%d)", editedIndex, n)
	}

	var total int64
	for i, a := range amounts {
		if a < 0 {
			return nil, apperror.Validation("share %d must not be negative", i)
		}
		var ok bool
		if total, ok = Add(total, a); !ok {
			return nil, apperror.Validation("shares overflow at index %d", i)
		}
	}

	result := make([]int64, n)
	if n == 1 {
		result[0] = total
		return result, nil
	}

	edited := min(max(newValue, 0), total)
	result[editedIndex] = edited

	remaining := total - edited
	others := int64(n - 1)
	share := remaining / others
	leftover := remaining - share*others

	tieBreak := -1
	for i := range result {
		if i == editedIndex {
			continue
		}
		result[i] = share
		if tieBreak < 0 {
			tieBreak = i
		}
	}
	result[tieBreak] += leftover
	return result, nil
}

// Validate checks that shares lie in [0, total] and add up to total.
func Validate(total int64, amounts []int64) error {
	var sum int64
	for i, a := range amounts {
		if a < 0 {
			return apperror.Validation("share %d must not be negative", i)
		}
		if a > total {
			return apperror.Validation("share %d of %d exceeds batch total %d", i, a, total)
		}
		var ok bool
		if sum, ok = Add(sum, a); !ok {
			return apperror.Validation("shares overflow at index %d", i)
		}
	}
	if sum != total {
		return apperror.Validation("shares sum to %d, batch total is %d", sum, total)
	}
	return nil
}
