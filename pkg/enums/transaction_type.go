package enums

import "fmt"

// TransactionType is the kind of ledger movement: a charge or a payment.
type TransactionType string

const (
	// TransactionTypeDebt adds to the client's debt.
	TransactionTypeDebt TransactionType = "Deuda"
	// TransactionTypePayment subtracts from the client's debt.
	TransactionTypePayment TransactionType = "Abono"
)

var validTransactionTypes = []TransactionType{
	TransactionTypeDebt,
	TransactionTypePayment,
}

// IsValid reports whether the value is one of the two transaction kinds.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// Sign is +1 for Deuda, -1 for Abono and 0 for anything else.
func (t TransactionType) Sign() int64 {
	switch t {
	case TransactionTypeDebt:
		return 1
	case TransactionTypePayment:
		return -1
	default:
		return 0
	}
}

// ParseTransactionType converts raw input into TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
