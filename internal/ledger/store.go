// Package ledger owns the authoritative client ledger: validation, mutations
// with debt compaction, background persistence, derived views and the change
// feed consumed by the backup coordinator.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pkgerrors "github.com/colmadogutierrez/debtbook/pkg/errors"
	"github.com/colmadogutierrez/debtbook/pkg/kv"
	"github.com/colmadogutierrez/debtbook/pkg/logger"
	"github.com/colmadogutierrez/debtbook/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StoreParams wires a Store.
type StoreParams struct {
	KV      kv.Store
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Clock   func() time.Time
	NewID   func() string
}

// Store is safe for concurrent use. Mutations are applied one at a time in
// call order; subscribers are notified in the same order after the data lock
// is released. Subscribers must not mutate the store.
type Store struct {
	kv      kv.Store
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
	newID   func() string

	writeMu sync.Mutex
	mu      sync.RWMutex
	clients []Client
	version uint64
	closed  bool

	subsMu sync.Mutex
	subs   map[int]func(Change)
	nextID int

	persister *persister
}

func NewStore(params StoreParams) (*Store, error) {
	if params.KV == nil {
		return nil, fmt.Errorf("kv store is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	newID := params.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{
		kv:        params.KV,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
		newID:     newID,
		clients:   []Client{},
		subs:      map[int]func(Change){},
		persister: newPersister(params.KV, params.Logger, params.Metrics),
	}, nil
}

// Load hydrates the ledger from the kv store. A record that fails validation
// is discarded (the key is deleted) and the ledger starts empty.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	raw, found, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read persisted ledger")
	}

	clients := []Client{}
	if found {
		decoded, decodeErr := Decode([]byte(raw))
		if decodeErr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", decodeErr.Error()), "discarding invalid persisted ledger")
			if err := s.kv.Delete(ctx, StorageKey); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete invalid ledger")
			}
		} else {
			clients = decoded
		}
	}

	s.mu.Lock()
	s.clients = clients
	size := len(s.clients)
	s.mu.Unlock()

	s.logg.Info(s.logg.WithField(ctx, "clients", size), "ledger hydrated")
	s.notify(Change{Op: OpHydrate, Size: size, Initial: true})
	return nil
}

// Subscribe registers fn for every subsequent change and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs, id)
	}
}

// ReplaceAll swaps the whole ledger after validating it.
func (s *Store) ReplaceAll(ctx context.Context, clients []Client) error {
	raw, err := json.Marshal(nonNil(clients))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDataFormat, err, "encode ledger")
	}
	return s.ReplaceAllJSON(ctx, raw)
}

// ReplaceAllJSON validates a serialised ledger and, if valid, replaces the
// current state atomically. Invalid input leaves the ledger untouched.
func (s *Store) ReplaceAllJSON(ctx context.Context, raw []byte) error {
	clients, err := Decode(raw)
	if err != nil {
		return err
	}
	s.mutate(ctx, OpReplaceAll, func(current []Client) ([]Client, bool) {
		return clients, true
	})
	return nil
}

// AddClient appends a client, with no debt unless an opening transaction is
// given. An id is generated when absent; a duplicate id is rejected.
func (s *Store) AddClient(ctx context.Context, input NewClient) (Client, error) {
	id := input.ID
	if id == "" {
		id = s.newID()
	}
	created := Client{
		ID:           id,
		Name:         input.Name,
		Phone:        input.Phone,
		Debt:         decimal.Zero,
		Transactions: []Transaction{},
	}
	if input.Opening != nil {
		created.Transactions = []Transaction{*input.Opening}
		settle(&created)
	}

	var conflict bool
	s.mutate(ctx, OpAddClient, func(current []Client) ([]Client, bool) {
		if indexOf(current, id) >= 0 {
			conflict = true
			return current, false
		}
		return append(current, created), true
	})
	if conflict {
		return Client{}, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("client id %q already exists", id))
	}
	return created.clone(), nil
}

// UpdateClient changes name and/or phone; nil leaves a field as is.
func (s *Store) UpdateClient(ctx context.Context, id string, name, phone *string) (Client, bool) {
	var updated Client
	found := s.mutate(ctx, OpUpdateClient, func(current []Client) ([]Client, bool) {
		idx := indexOf(current, id)
		if idx < 0 {
			return current, false
		}
		if name != nil {
			current[idx].Name = *name
		}
		if phone != nil {
			current[idx].Phone = *phone
		}
		updated = current[idx].clone()
		return current, true
	})
	return updated, found
}

// DeleteClient removes the client regardless of its debt.
func (s *Store) DeleteClient(ctx context.Context, id string) bool {
	return s.mutate(ctx, OpDeleteClient, func(current []Client) ([]Client, bool) {
		idx := indexOf(current, id)
		if idx < 0 {
			return current, false
		}
		return append(current[:idx], current[idx+1:]...), true
	})
}

// AddTransaction prepends tx and recomputes the debt; unknown clients are ignored.
func (s *Store) AddTransaction(ctx context.Context, clientID string, tx Transaction) (Client, bool) {
	var updated Client
	found := s.mutate(ctx, OpAddTransaction, func(current []Client) ([]Client, bool) {
		idx := indexOf(current, clientID)
		if idx < 0 {
			return current, false
		}
		c := &current[idx]
		c.Transactions = append([]Transaction{tx}, c.Transactions...)
		settle(c)
		updated = c.clone()
		return current, true
	})
	return updated, found
}

// DeleteTransaction removes the first structurally equal transaction and
// recomputes the debt. The bool is false when the client or the transaction
// does not exist, in which case nothing changes.
func (s *Store) DeleteTransaction(ctx context.Context, clientID string, tx Transaction) (Client, bool) {
	var updated Client
	changed := s.mutate(ctx, OpDeleteTransaction, func(current []Client) ([]Client, bool) {
		idx := indexOf(current, clientID)
		if idx < 0 {
			return current, false
		}
		c := &current[idx]
		match := -1
		for i, candidate := range c.Transactions {
			if candidate.Equal(tx) {
				match = i
				break
			}
		}
		if match < 0 {
			updated = c.clone()
			return current, false
		}
		c.Transactions = append(c.Transactions[:match:match], c.Transactions[match+1:]...)
		settle(c)
		updated = c.clone()
		return current, true
	})
	return updated, changed
}

// Flush waits until every mutation so far has been written to the kv store.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	version, closed := s.version, s.closed
	s.mu.RUnlock()
	if version == 0 || closed {
		return nil
	}
	return s.persister.flush(ctx, version)
}

// Close flushes pending writes and stops the persister.
func (s *Store) Close(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	flushErr := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if err := s.persister.close(ctx); err != nil {
		return err
	}
	return flushErr
}

// mutate applies fn to a private copy of the ledger. When fn reports a change
// the copy becomes the new state, a snapshot is queued for persistence and
// subscribers are notified.
func (s *Store) mutate(ctx context.Context, op Op, fn func(current []Client) ([]Client, bool)) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	working := cloneAll(s.clients)
	next, changed := fn(working)
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.clients = nonNil(next)
	s.version++
	version, size, closed := s.version, len(s.clients), s.closed
	snapshot, err := json.Marshal(s.clients)
	s.mu.Unlock()

	switch {
	case err != nil:
		s.logg.Error(ctx, "encode ledger snapshot", err)
	case closed:
		s.logg.Warn(s.logg.WithField(ctx, "op", string(op)), "ledger store closed; change kept in memory only")
	default:
		s.persister.submit(version, snapshot)
	}

	s.metrics.ObserveChange(string(op), size, s.TotalDebt().InexactFloat64())
	s.notify(Change{Op: op, Size: size})
	return true
}

func (s *Store) notify(change Change) {
	s.subsMu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

func indexOf(clients []Client, id string) int {
	for i := range clients {
		if clients[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(clients []Client) []Client {
	out := make([]Client, len(clients))
	for i := range clients {
		out[i] = clients[i].clone()
	}
	return out
}

func nonNil(clients []Client) []Client {
	if clients == nil {
		return []Client{}
	}
	return clients
}
