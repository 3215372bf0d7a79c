package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("COMPLETED")
	if err != nil || got != OrderStatusCompleted {
		t.Fatalf("expected COMPLETED, got %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("completed"); err == nil {
		t.Fatal("expected lowercase status to be rejected")
	}
	if OrderStatusPending.IsTerminal() {
		t.Fatal("pending must not be terminal")
	}
}

func TestDeliveryStatusRank(t *testing.T) {
	if DeliveryStatusNotPicked.Rank() != 0 {
		t.Fatalf("expected NOT_PICKED first")
	}
	if DeliveryStatusDelivered.Rank() >= DeliveryStatusAudited.Rank() {
		t.Fatalf("expected AUDITED after DELIVERED")
	}
	if DeliveryStatusCancelled.Rank() != -1 {
		t.Fatalf("CANCELLED is not on the forward path")
	}
	if !DeliveryStatusCancelled.IsValid() || !DeliveryStatusCancelled.IsTerminal() {
		t.Fatalf("CANCELLED must be valid and terminal")
	}
	if _, err := ParseDeliveryStatus("LOST"); err == nil {
		t.Fatal("expected unknown delivery status to be rejected")
	}
}

func TestFundTypeWithdrawable(t *testing.T) {
	cases := map[FundType]bool{
		FundTypePayment:      true,
		FundTypeRefund:       true,
		FundTypeRegBonus:     false,
		FundTypeRedeemCredit: false,
	}
	for fundType, want := range cases {
		if got := fundType.IsWithdrawable(); got != want {
			t.Fatalf("%s: expected %v got %v", fundType, want, got)
		}
	}
}

func TestParseCurrency(t *testing.T) {
	got, err := ParseCurrency(" usd")
	if err != nil || got != CurrencyUSD {
		t.Fatalf("ParseCurrency(usd) = %q, %v", got, err)
	}
	if _, err := ParseCurrency("BTC"); err == nil {
		t.Fatal("expected unsupported currency error")
	}
	if Currency("ngn").IsValid() {
		t.Fatal("IsValid must be exact; only ParseCurrency normalizes")
	}
}
