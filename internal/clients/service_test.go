package clients

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) (Service, *ledger.Store) {
	t.Helper()
	seq := 0
	store, err := ledger.NewStore(ledger.StoreParams{
		KV:     kv.NewMemoryStore(),
		Logger: logger.Nop(),
		Clock:  func() time.Time { return fixedNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("client-%d", seq)
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	svc, err := NewService(ServiceParams{
		Ledger: store,
		Logger: logger.Nop(),
		Clock:  func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return svc, store
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestFormatName(t *testing.T) {
	cases := map[string]string{
		"  juan   perez ": "Juan Perez",
		"MARIA lopez":     "Maria Lopez",
		"josé ñúñez!!":    "José Ñúñez",
		"ana-maria (2)":   "Anamaria 2",
		"pedro\tsantos":   "Pedro Santos",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatName(in), in)
	}
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("809-555-1234"))
	assert.False(t, ValidPhone("8095551234"))
	assert.False(t, ValidPhone("809-555-123"))
	assert.False(t, ValidPhone("abc-def-ghij"))
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	created, err := svc.Create(ctx, CreateClientInput{Name: "juan  perez", Phone: "809-555-1234"})
	require.NoError(t, err)
	assert.Equal(t, "client-1", created.ID)
	assert.Equal(t, "Juan Perez", created.Name)
	assert.Equal(t, "809-555-1234", created.Phone)
	assert.True(t, created.Debt.IsZero())
	assert.Empty(t, created.Transactions)

	withDebt, err := svc.Create(ctx, CreateClientInput{Name: "Ana", InitialDebt: decimal.NewFromInt(1500)})
	require.NoError(t, err)
	assert.True(t, withDebt.Debt.Equal(decimal.NewFromInt(1500)))
	require.Len(t, withDebt.Transactions, 1)
	assert.Equal(t, enums.TransactionTypeDebt, withDebt.Transactions[0].Type)
	assert.Equal(t, "2024-03-15T10:30:00.000Z", withDebt.Transactions[0].Date)
}

func TestCreateWithInitialDebtIsOneChange(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	var changes []ledger.Change
	var seen []ledger.Client
	unsubscribe := store.Subscribe(func(change ledger.Change) {
		changes = append(changes, change)
		seen = store.Clients()
	})
	defer unsubscribe()

	_, err := svc.Create(ctx, CreateClientInput{Name: "Ana", InitialDebt: decimal.NewFromInt(500)})
	require.NoError(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, ledger.OpAddClient, changes[0].Op)
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Debt.Equal(decimal.NewFromInt(500)), "observers never see the client without its opening debt")
	assert.Len(t, seen[0].Transactions, 1)
}

func TestCreateRejections(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	_, err := svc.Create(ctx, CreateClientInput{Name: "Maria Lopez"})
	require.NoError(t, err)

	cases := []struct {
		name  string
		input CreateClientInput
		code  pkgerrors.Code
	}{
		{"too short", CreateClientInput{Name: "Al"}, pkgerrors.CodeValidation},
		{"short after cleanup", CreateClientInput{Name: "A!!b"}, pkgerrors.CodeValidation},
		{"too long", CreateClientInput{Name: "Bartolomeo Fernandez"}, pkgerrors.CodeValidation},
		{"bad phone", CreateClientInput{Name: "Pedro", Phone: "8095551234"}, pkgerrors.CodeValidation},
		{"negative debt", CreateClientInput{Name: "Pedro", InitialDebt: decimal.NewFromInt(-1)}, pkgerrors.CodeValidation},
		{"debt over cap", CreateClientInput{Name: "Pedro", InitialDebt: decimal.NewFromInt(50001)}, pkgerrors.CodeValidation},
		{"duplicate name", CreateClientInput{Name: "maria LOPEZ"}, pkgerrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.input)
			requireCode(t, err, tc.code)
		})
	}
	assert.Equal(t, 1, store.Size())

	_, err = svc.Create(ctx, CreateClientInput{Name: "Pedro", InitialDebt: decimal.NewFromInt(50000)})
	require.NoError(t, err, "the cap itself is allowed")
}

func TestRecordTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	client, err := svc.Create(ctx, CreateClientInput{Name: "Juan", InitialDebt: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: enums.TransactionTypePayment, Amount: decimal.NewFromInt(101)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: enums.TransactionTypeDebt, Amount: decimal.NewFromInt(50001)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: enums.TransactionTypeDebt, Amount: decimal.Zero})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: "Prestamo", Amount: decimal.NewFromInt(1)})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.RecordTransaction(ctx, "missing", RecordTransactionInput{Type: enums.TransactionTypeDebt, Amount: decimal.NewFromInt(1)})
	requireCode(t, err, pkgerrors.CodeNotFound)

	updated, err := svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: enums.TransactionTypePayment, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.True(t, updated.Debt.Equal(decimal.NewFromInt(60)))
	require.Len(t, updated.Transactions, 2)

	settled, err := svc.RecordTransaction(ctx, client.ID, RecordTransactionInput{Type: enums.TransactionTypePayment, Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	assert.True(t, settled.Debt.IsZero())
	assert.Empty(t, settled.Transactions, "settling the debt clears the history")
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	juan, err := svc.Create(ctx, CreateClientInput{Name: "Juan"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateClientInput{Name: "Pedro"})
	require.NoError(t, err)

	name := "juan carlos"
	updated, err := svc.Update(ctx, juan.ID, UpdateClientInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Juan Carlos", updated.Name)

	same := "JUAN CARLOS"
	_, err = svc.Update(ctx, juan.ID, UpdateClientInput{Name: &same})
	require.NoError(t, err, "renaming to its own name is not a conflict")

	taken := "pedro"
	_, err = svc.Update(ctx, juan.ID, UpdateClientInput{Name: &taken})
	requireCode(t, err, pkgerrors.CodeConflict)

	badPhone := "123"
	_, err = svc.Update(ctx, juan.ID, UpdateClientInput{Phone: &badPhone})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Update(ctx, "missing", UpdateClientInput{Name: &name})
	requireCode(t, err, pkgerrors.CodeNotFound)

	phone := "809-000-1111"
	updated, err = svc.Update(ctx, juan.ID, UpdateClientInput{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "809-000-1111", updated.Phone)
	assert.Equal(t, "Juan Carlos", updated.Name)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	debtor, err := svc.Create(ctx, CreateClientInput{Name: "Juan", InitialDebt: decimal.NewFromInt(10)})
	require.NoError(t, err)

	err = svc.Delete(ctx, debtor.ID)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.Equal(t, 1, store.Size())

	_, err = svc.RecordTransaction(ctx, debtor.ID, RecordTransactionInput{Type: enums.TransactionTypePayment, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, debtor.ID))
	assert.Zero(t, store.Size())

	requireCode(t, svc.Delete(ctx, debtor.ID), pkgerrors.CodeNotFound)
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	client, err := svc.Create(ctx, CreateClientInput{Name: "Juan", InitialDebt: decimal.NewFromInt(100)})
	require.NoError(t, err)
	charge := client.Transactions[0]

	_, err = svc.DeleteTransaction(ctx, "missing", charge)
	requireCode(t, err, pkgerrors.CodeNotFound)

	other := ledger.NewTransaction(enums.TransactionTypeDebt, decimal.NewFromInt(7), fixedNow)
	_, err = svc.DeleteTransaction(ctx, client.ID, other)
	requireCode(t, err, pkgerrors.CodeNotFound)

	updated, err := svc.DeleteTransaction(ctx, client.ID, charge)
	require.NoError(t, err)
	assert.True(t, updated.Debt.IsZero())
	assert.Empty(t, updated.Transactions)
}

func TestListAndSummary(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	for i, name := range []string{"Ana", "Bruno", "Carla", "Dario"} {
		_, err := svc.Create(ctx, CreateClientInput{Name: name, InitialDebt: decimal.NewFromInt(int64(i * 100))})
		require.NoError(t, err)
	}

	top := svc.List("", 0)
	require.Len(t, top, 3, "clients without debt are not debtors")
	assert.Equal(t, "Dario", top[0].Name)

	found := svc.List("AR", 0)
	names := []string{}
	for _, c := range found {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"Carla", "Dario"}, names)

	summary := svc.Summary()
	assert.Equal(t, 4, summary.Clients)
	assert.Equal(t, 3, summary.ClientsWithDebt)
	assert.True(t, summary.TotalDebt.Equal(decimal.NewFromInt(600)))

	_, err := svc.Get("missing")
	requireCode(t, err, pkgerrors.CodeNotFound)
}
