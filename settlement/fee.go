package settlement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"marketflow/ledger"
)

// FeeSchedule holds the platform fee rate per transaction type.
type FeeSchedule struct {
	Purchase   decimal.Decimal
	Investment decimal.Decimal
}

func DefaultFeeSchedule() FeeSchedule {
	rate := decimal.RequireFromString("0.05")
	return FeeSchedule{Purchase: rate, Investment: rate}
}

func (f FeeSchedule) Rate(t ledger.Type) (decimal.Decimal, error) {
	switch t {
	case ledger.TypePurchase:
		return f.Purchase, nil
	case ledger.TypeInvestment:
		return f.Investment, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidType, t)
}

// Split computes the platform fee, rounded half-up to the minor unit, and the
// net amount paid to the seller. fee + net always equals amount.
func (f FeeSchedule) Split(amount int64, t ledger.Type) (fee, net int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	rate, err := f.Rate(t)
	if err != nil {
		return 0, 0, err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return 0, 0, fmt.Errorf("settlement: fee rate %s out of range", rate)
	}
	fee = decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
	return fee, amount - fee, nil
}
