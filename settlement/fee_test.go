package settlement

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"marketflow/ledger"
)

func TestFeeSplit(t *testing.T) {
	fees := FeeSchedule{
		Purchase:   decimal.RequireFromString("0.05"),
		Investment: decimal.RequireFromString("0.025"),
	}
	cases := []struct {
		amount  int64
		typ     ledger.Type
		wantFee int64
	}{
		{100000, ledger.TypePurchase, 5000},
		{100010, ledger.TypePurchase, 5001}, // 5000.5 rounds up
		{100009, ledger.TypePurchase, 5000}, // 5000.45 rounds down
		{100020, ledger.TypeInvestment, 2501},
		{1, ledger.TypePurchase, 0},
		{10, ledger.TypePurchase, 1}, // 0.5 rounds up
	}
	for _, tc := range cases {
		fee, net, err := fees.Split(tc.amount, tc.typ)
		if err != nil {
			t.Fatalf("Split(%d, %s): unexpected error %v", tc.amount, tc.typ, err)
		}
		if fee != tc.wantFee {
			t.Errorf("Split(%d, %s) fee = %d, want %d", tc.amount, tc.typ, fee, tc.wantFee)
		}
		if fee+net != tc.amount {
			t.Errorf("Split(%d, %s): %d + %d != amount", tc.amount, tc.typ, fee, net)
		}
	}
}

func TestFeeSplit_SumsToAmount(t *testing.T) {
	fees := FeeSchedule{Purchase: decimal.RequireFromString("0.0375"), Investment: decimal.RequireFromString("0.05")}
	for amount := int64(1); amount < 5000; amount += 7 {
		fee, net, err := fees.Split(amount, ledger.TypePurchase)
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		if fee < 0 || net < 0 || fee+net != amount {
			t.Fatalf("amount %d: fee %d net %d", amount, fee, net)
		}
	}
}

func TestFeeSplit_Rejects(t *testing.T) {
	fees := DefaultFeeSchedule()
	if _, _, err := fees.Split(0, ledger.TypePurchase); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := fees.Split(100, ledger.Type("gift")); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
	bad := FeeSchedule{Purchase: decimal.NewFromInt(1), Investment: decimal.Zero}
	if _, _, err := bad.Split(100, ledger.TypePurchase); err == nil {
		t.Errorf("expected error for 100%% fee rate")
	}
}
