package ledger

import "github.com/shopspring/decimal"

// ComputeDebt is the signed sum of the history: Deuda adds, Abono subtracts.
func ComputeDebt(transactions []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range transactions {
		sum = sum.Add(tx.Amount.Mul(decimal.NewFromInt(tx.Type.Sign())))
	}
	return sum
}

// settle recomputes the cached debt. A history that sums to zero or less is
// fully paid: the debt is clamped to 0 and the history is cleared.
func settle(c *Client) {
	sum := ComputeDebt(c.Transactions)
	if sum.Sign() <= 0 {
		c.Debt = decimal.Zero
		c.Transactions = []Transaction{}
		return
	}
	c.Debt = sum
}
