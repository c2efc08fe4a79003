package clients

import (
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	"github.com/shopspring/decimal"
)

const (
	MinNameLength = 3
	MaxNameLength = 17
)

// MaxDebtAmount caps an initial debt and any single Deuda.
var MaxDebtAmount = decimal.NewFromInt(50000)

// CreateClientInput is the raw form of a new client.
type CreateClientInput struct {
	Name        string
	Phone       string
	InitialDebt decimal.Decimal
}

// UpdateClientInput changes name and/or phone; nil fields are left alone.
type UpdateClientInput struct {
	Name  *string
	Phone *string
}

// RecordTransactionInput is a charge or payment entered for a client.
type RecordTransactionInput struct {
	Type   enums.TransactionType
	Amount decimal.Decimal
}
