package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
)

// FormatDetails lists every structural problem found in a ledger payload.
type FormatDetails struct {
	Problems []string `json:"problems"`
}

// Decode validates the structure of a serialised ledger and returns the typed
// clients. Every violation is reported in the error details.
func Decode(raw []byte) ([]Client, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, formatError(fmt.Errorf("not valid JSON: %w", err))
	}
	if dec.More() {
		return nil, formatError(fmt.Errorf("trailing data after ledger array"))
	}
	if err := validateDocument(doc); err != nil {
		return nil, formatError(err)
	}

	var clients []Client
	if err := json.Unmarshal(raw, &clients); err != nil {
		return nil, formatError(err)
	}
	for i := range clients {
		if clients[i].Transactions == nil {
			clients[i].Transactions = []Transaction{}
		}
	}
	return clients, nil
}

func formatError(err error) error {
	problems := []string{}
	for _, e := range multierr.Errors(err) {
		problems = append(problems, e.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeDataFormat, err, "invalid ledger data").
		WithDetails(FormatDetails{Problems: problems})
}

func validateDocument(doc any) error {
	items, ok := doc.([]any)
	if !ok {
		return fmt.Errorf("ledger must be an array of clients")
	}

	var errs error
	seen := make(map[string]int, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("clients[%d]: must be an object", i))
			continue
		}
		errs = multierr.Append(errs, validateClient(i, obj))

		if id, ok := obj["id"].(string); ok && id != "" {
			if prev, dup := seen[id]; dup {
				errs = multierr.Append(errs, fmt.Errorf("clients[%d].id: duplicates clients[%d]", i, prev))
			} else {
				seen[id] = i
			}
		}
	}
	return errs
}

func validateClient(i int, obj map[string]any) error {
	var errs error
	id, ok := obj["id"].(string)
	switch {
	case !ok:
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].id: must be a string", i))
	case id == "":
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].id: must not be empty", i))
	}
	if _, ok := obj["name"].(string); !ok {
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].name: must be a string", i))
	}
	if phone, present := obj["phone"]; present && phone != nil {
		if _, ok := phone.(string); !ok {
			errs = multierr.Append(errs, fmt.Errorf("clients[%d].phone: must be a string", i))
		}
	}
	debt, debtOK := obj["debt"].(json.Number)
	if !debtOK {
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].debt: must be a number", i))
	}

	txs, ok := obj["transactions"].([]any)
	if !ok {
		return multierr.Append(errs, fmt.Errorf("clients[%d].transactions: must be an array", i))
	}
	if debtOK && len(txs) == 0 {
		if amount, err := decimal.NewFromString(debt.String()); err == nil && !amount.IsZero() {
			errs = multierr.Append(errs, fmt.Errorf("clients[%d].debt: must be 0 when transactions is empty", i))
		}
	}
	for j, item := range txs {
		errs = multierr.Append(errs, validateTransaction(i, j, item))
	}
	return errs
}

func validateTransaction(i, j int, item any) error {
	tx, ok := item.(map[string]any)
	if !ok {
		return fmt.Errorf("clients[%d].transactions[%d]: must be an object", i, j)
	}
	var errs error
	if _, ok := tx["date"].(string); !ok {
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].transactions[%d].date: must be a string", i, j))
	}
	if _, ok := tx["amount"].(json.Number); !ok {
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].transactions[%d].amount: must be a number", i, j))
	}
	switch kind, ok := tx["type"].(string); {
	case !ok:
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].transactions[%d].type: must be a string", i, j))
	case !enums.TransactionType(kind).IsValid():
		errs = multierr.Append(errs, fmt.Errorf("clients[%d].transactions[%d].type: must be %q or %q", i, j, enums.TransactionTypeDebt, enums.TransactionTypePayment))
	}
	return errs
}
