package calculator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoParticipants   = errors.New("must have at least one participant")
	ErrNonPositiveTotal = errors.New("total amount must be greater than zero")
	ErrNegativeShare    = errors.New("share amounts cannot be negative")
	ErrShareMismatch    = errors.New("participant shares do not add up to the total")
)

// RoundCents rounds an amount to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// SplitEqually divides total into n shares rounded to cents.
// Leftover cents go one each to the first shares, so the shares always sum to total.
func SplitEqually(total decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n <= 0 {
		return nil, ErrNoParticipants
	}
	if !total.IsPositive() {
		return nil, ErrNonPositiveTotal
	}

	// Work in whole cents as decimals so large totals cannot overflow.
	cents := RoundCents(total).Shift(2)
	base, rem := cents.QuoRem(decimal.NewFromInt(int64(n)), 0)
	remainder := rem.IntPart()

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < remainder {
			c = c.Add(decimal.NewFromInt(1))
		}
		shares[i] = c.Shift(-2)
	}
	return shares, nil
}

// ValidateShares checks custom shares against the transaction total.
// Every share must be non-negative and the cent-rounded shares must sum exactly to total.
func ValidateShares(total decimal.Decimal, shares []decimal.Decimal) error {
	if len(shares) == 0 {
		return ErrNoParticipants
	}
	if !total.IsPositive() {
		return ErrNonPositiveTotal
	}

	sum := decimal.Zero
	for _, s := range shares {
		if s.IsNegative() {
			return ErrNegativeShare
		}
		sum = sum.Add(RoundCents(s))
	}

	total = RoundCents(total)
	if !sum.Equal(total) {
		return fmt.Errorf("%w: shares sum to %s, total is %s",
			ErrShareMismatch, sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}
