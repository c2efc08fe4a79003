// Package clients applies the shop's business rules on top of the ledger:
// name and phone formats, amount limits and delete guards.
package clients

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/colmadogutierrez/debtbook/internal/ledger"
	"github.com/colmadogutierrez/debtbook/pkg/enums"
	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
)

// DefaultListLimit is how many debtors List returns without a query.
const DefaultListLimit = 10

// ServiceParams groups dependencies for the client service.
type ServiceParams struct {
	Ledger *ledger.Store
	Logger *logger.Logger
	Clock  func() time.Time
}

// Service exposes business rules for client management.
type Service interface {
	List(query string, limit int) []ledger.Client
	Summary() ledger.Summary
	Get(id string) (ledger.Client, error)
	Create(ctx context.Context, input CreateClientInput) (ledger.Client, error)
	Update(ctx context.Context, id string, input UpdateClientInput) (ledger.Client, error)
	Delete(ctx context.Context, id string) error
	RecordTransaction(ctx context.Context, id string, input RecordTransactionInput) (ledger.Client, error)
	DeleteTransaction(ctx context.Context, id string, tx ledger.Transaction) (ledger.Client, error)
}

type service struct {
	ledger *ledger.Store
	logg   *logger.Logger
	now    func() time.Time

	// mu keeps a rule check and the mutation it guards together.
	mu sync.Mutex
}

// NewService builds a client service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ledger store is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{ledger: params.Ledger, logg: params.Logger, now: now}, nil
}

// List searches by name when query is set, otherwise returns the top debtors.
func (s *service) List(query string, limit int) []ledger.Client {
	if strings.TrimSpace(query) != "" {
		return s.ledger.Search(query, limit)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.ledger.TopDebtors(limit)
}

func (s *service) Summary() ledger.Summary {
	return s.ledger.Summary()
}

func (s *service) Get(id string) (ledger.Client, error) {
	client, ok := s.ledger.Client(id)
	if !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	return client, nil
}

// Create adds a client and, for a positive initial debt, its first Deuda.
func (s *service) Create(ctx context.Context, input CreateClientInput) (ledger.Client, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return ledger.Client{}, err
	}
	phone := strings.TrimSpace(input.Phone)
	if phone != "" && !ValidPhone(phone) {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, "phone must use the format 000-000-0000")
	}
	if input.InitialDebt.IsNegative() {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, "initial debt cannot be negative")
	}
	if input.InitialDebt.GreaterThan(MaxDebtAmount) {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("initial debt cannot exceed %s", MaxDebtAmount))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureUniqueName(name, ""); err != nil {
		return ledger.Client{}, err
	}
	newClient := ledger.NewClient{Name: name, Phone: phone}
	if input.InitialDebt.IsPositive() {
		opening := ledger.NewTransaction(enums.TransactionTypeDebt, input.InitialDebt, s.now())
		newClient.Opening = &opening
	}
	created, err := s.ledger.AddClient(ctx, newClient)
	if err != nil {
		return ledger.Client{}, err
	}
	ctx = s.logg.WithClientID(ctx, created.ID)
	s.logg.Info(ctx, "client created")
	return created, nil
}

func (s *service) Update(ctx context.Context, id string, input UpdateClientInput) (ledger.Client, error) {
	var name, phone *string
	if input.Name != nil {
		formatted, err := normalizeName(*input.Name)
		if err != nil {
			return ledger.Client{}, err
		}
		name = &formatted
	}
	if input.Phone != nil {
		trimmed := strings.TrimSpace(*input.Phone)
		if trimmed != "" && !ValidPhone(trimmed) {
			return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, "phone must use the format 000-000-0000")
		}
		phone = &trimmed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger.Client(id); !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	if name != nil {
		if err := s.ensureUniqueName(*name, id); err != nil {
			return ledger.Client{}, err
		}
	}
	updated, ok := s.ledger.UpdateClient(ctx, id, name, phone)
	if !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	return updated, nil
}

// Delete removes a client whose debt is settled.
func (s *service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.ledger.Client(id)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	if !client.Debt.IsZero() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "client still has outstanding debt").
			WithDetails(map[string]any{"debt": client.Debt.String()})
	}
	s.ledger.DeleteClient(ctx, id)
	s.logg.Info(s.logg.WithClientID(ctx, id), "client deleted")
	return nil
}

func (s *service) RecordTransaction(ctx context.Context, id string, input RecordTransactionInput) (ledger.Client, error) {
	if !input.Type.IsValid() {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Amount.IsPositive() {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if input.Type == enums.TransactionTypeDebt && input.Amount.GreaterThan(MaxDebtAmount) {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("a single debt cannot exceed %s", MaxDebtAmount))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.ledger.Client(id)
	if !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	if input.Type == enums.TransactionTypePayment && input.Amount.GreaterThan(client.Debt) {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeValidation, "payment cannot exceed the outstanding debt").
			WithDetails(map[string]any{"debt": client.Debt.String()})
	}

	tx := ledger.NewTransaction(input.Type, input.Amount, s.now())
	updated, ok := s.ledger.AddTransaction(ctx, id, tx)
	if !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	return updated, nil
}

func (s *service) DeleteTransaction(ctx context.Context, id string, tx ledger.Transaction) (ledger.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ledger.Client(id); !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "client not found")
	}
	updated, ok := s.ledger.DeleteTransaction(ctx, id, tx)
	if !ok {
		return ledger.Client{}, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	return updated, nil
}

// ensureUniqueName must be called with mu held.
func (s *service) ensureUniqueName(name, exceptID string) error {
	for _, c := range s.ledger.Clients() {
		if c.ID != exceptID && strings.EqualFold(c.Name, name) {
			return pkgerrors.New(pkgerrors.CodeConflict, "a client with this name already exists")
		}
	}
	return nil
}

func normalizeName(raw string) (string, error) {
	name := FormatName(raw)
	length := utf8.RuneCountInString(name)
	if length < MinNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name must have at least %d characters", MinNameLength))
	}
	if length > MaxNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name cannot exceed %d characters", MaxNameLength))
	}
	return name, nil
}
