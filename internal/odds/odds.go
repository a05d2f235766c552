// Package odds implements American-odds wagering math on exact decimal
// arithmetic. Positive odds state profit per 100 staked; negative odds state the
// stake needed to profit 100.
package odds

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidOdds is returned for prices inside the open interval (-100, 100),
// which American format cannot express.
var ErrInvalidOdds = errors.New("invalid american odds")

var hundred = decimal.NewFromInt(100)

// Validate rejects odds that are not expressible in American format.
func Validate(american int) error {
	if american > -100 && american < 100 {
		return ErrInvalidOdds
	}
	return nil
}

// Payout computes the profit (excluding returned stake) for a winning wager of
// stake minor units at the given American price. Fractional results round
// banker's-style to whole minor units.
func Payout(stake int64, american int) (int64, error) {
	if err := Validate(american); err != nil {
		return 0, err
	}
	stakeDec := decimal.NewFromInt(stake)
	var profit decimal.Decimal
	if american > 0 {
		profit = stakeDec.Mul(decimal.NewFromInt(int64(american))).Div(hundred)
	} else {
		profit = stakeDec.Mul(hundred).Div(decimal.NewFromInt(int64(-american)))
	}
	return profit.RoundBank(0).IntPart(), nil
}

// Implied returns the probability implied by an American price, as a decimal in
// [0, 1] rounded to four places.
func Implied(american int) (decimal.Decimal, error) {
	if err := Validate(american); err != nil {
		return decimal.Zero, err
	}
	if american > 0 {
		price := decimal.NewFromInt(int64(american))
		return hundred.Div(price.Add(hundred)).Round(4), nil
	}
	price := decimal.NewFromInt(int64(-american))
	return price.Div(price.Add(hundred)).Round(4), nil
}
