package ledger

import (
	"encoding/json"
	"time"

	"github.com/colmadogutierrez/debtbook/pkg/enums"
	"github.com/shopspring/decimal"
)

// StorageKey is the kv key holding the serialised ledger.
const StorageKey = "clients"

// DateLayout matches ISO-8601 timestamps with millisecond precision in UTC.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// Transaction is an immutable charge (Deuda) or payment (Abono).
type Transaction struct {
	Date   string                `json:"date"`
	Amount decimal.Decimal       `json:"amount"`
	Type   enums.TransactionType `json:"type"`
}

// NewTransaction stamps a transaction with the given instant.
func NewTransaction(kind enums.TransactionType, amount decimal.Decimal, at time.Time) Transaction {
	return Transaction{Date: at.UTC().Format(DateLayout), Amount: amount, Type: kind}
}

// Equal is structural equality; two identical movements on the same instant
// are indistinguishable.
func (t Transaction) Equal(other Transaction) bool {
	return t.Date == other.Date && t.Type == other.Type && t.Amount.Equal(other.Amount)
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date   string                `json:"date"`
		Amount json.Number           `json:"amount"`
		Type   enums.TransactionType `json:"type"`
	}{t.Date, json.Number(t.Amount.String()), t.Type})
}

// Client is one customer. Debt is a cached projection of Transactions
// (newest first) and is zero exactly when Transactions is empty.
type Client struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Phone        string          `json:"phone,omitempty"`
	Debt         decimal.Decimal `json:"debt"`
	Transactions []Transaction   `json:"transactions"`
}

func (c Client) MarshalJSON() ([]byte, error) {
	txs := c.Transactions
	if txs == nil {
		txs = []Transaction{}
	}
	return json.Marshal(struct {
		ID           string        `json:"id"`
		Name         string        `json:"name"`
		Phone        string        `json:"phone,omitempty"`
		Debt         json.Number   `json:"debt"`
		Transactions []Transaction `json:"transactions"`
	}{c.ID, c.Name, c.Phone, json.Number(c.Debt.String()), txs})
}

func (c Client) clone() Client {
	out := c
	out.Transactions = make([]Transaction, len(c.Transactions))
	copy(out.Transactions, c.Transactions)
	return out
}

// NewClient is the input of AddClient. Opening, when set, becomes the first
// transaction of the new client in the same mutation.
type NewClient struct {
	ID      string
	Name    string
	Phone   string
	Opening *Transaction
}

// Summary aggregates the home-screen figures.
type Summary struct {
	TotalDebt       decimal.Decimal `json:"total_debt"`
	ClientsWithDebt int             `json:"clients_with_debt"`
	Clients         int             `json:"clients"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TotalDebt       json.Number `json:"total_debt"`
		ClientsWithDebt int         `json:"clients_with_debt"`
		Clients         int         `json:"clients"`
	}{json.Number(s.TotalDebt.String()), s.ClientsWithDebt, s.Clients})
}

// Op names a ledger mutation in the change feed.
type Op string

const (
	OpHydrate           Op = "hydrate"
	OpReplaceAll        Op = "replace_all"
	OpAddClient         Op = "add_client"
	OpUpdateClient      Op = "update_client"
	OpDeleteClient      Op = "delete_client"
	OpAddTransaction    Op = "add_transaction"
	OpDeleteTransaction Op = "delete_transaction"
)

// Change is delivered to subscribers after every mutation. Initial is set
// only for the notification that follows hydration.
type Change struct {
	Op      Op
	Size    int
	Initial bool
}
