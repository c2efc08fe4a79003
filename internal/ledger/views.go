package ledger

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultSearchLimit caps Search results when no limit is given.
const DefaultSearchLimit = 5

// Clients returns a copy of the whole ledger in stored order.
func (s *Store) Clients() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.clients)
}

// Client looks up a client by id.
func (s *Store) Client(id string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := indexOf(s.clients, id)
	if idx < 0 {
		return Client{}, false
	}
	return s.clients[idx].clone(), true
}

// Size is the number of clients.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Snapshot serialises the current ledger.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(nonNil(s.clients))
}

// Debtors lists clients with positive debt, largest first.
func (s *Store) Debtors() []Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Client{}
	for _, c := range s.clients {
		if c.Debt.Sign() > 0 {
			out = append(out, c.clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Debt.GreaterThan(out[j].Debt)
	})
	return out
}

// TopDebtors returns at most n entries of Debtors.
func (s *Store) TopDebtors(n int) []Client {
	debtors := s.Debtors()
	if n >= 0 && len(debtors) > n {
		return debtors[:n]
	}
	return debtors
}

// Search matches names case-insensitively by substring, in stored order.
// A non-positive limit means DefaultSearchLimit.
func (s *Store) Search(query string, limit int) []Client {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Client{}
	for _, c := range s.clients {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(c.Name), needle) {
			out = append(out, c.clone())
		}
	}
	return out
}

// TotalDebt sums every positive debt.
func (s *Store) TotalDebt() decimal.Decimal {
	return s.Summary().TotalDebt
}

// Summary aggregates the totals shown on the home screen.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := Summary{TotalDebt: decimal.Zero, Clients: len(s.clients)}
	for _, c := range s.clients {
		if c.Debt.Sign() > 0 {
			summary.TotalDebt = summary.TotalDebt.Add(c.Debt)
			summary.ClientsWithDebt++
		}
	}
	return summary
}
