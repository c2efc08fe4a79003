package enums

import "testing"

func TestParseTransactionType(t *testing.T) {
	got, err := ParseTransactionType("Deuda")
	if err != nil || got != TransactionTypeDebt {
		t.Fatalf("expected Deuda, got %q err=%v", got, err)
	}
	got, err = ParseTransactionType("Abono")
	if err != nil || got != TransactionTypePayment {
		t.Fatalf("expected Abono, got %q err=%v", got, err)
	}
	if _, err := ParseTransactionType("deuda"); err == nil {
		t.Fatal("parsing is case sensitive")
	}
}

func TestTransactionTypeSign(t *testing.T) {
	if TransactionTypeDebt.Sign() != 1 || TransactionTypePayment.Sign() != -1 {
		t.Fatal("unexpected signs")
	}
	if TransactionType("Refund").Sign() != 0 || TransactionType("Refund").IsValid() {
		t.Fatal("unknown types carry no sign")
	}
}
