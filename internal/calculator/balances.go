package calculator

import (
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/whobought/internal/models"
)

// Epsilon is the smallest currency unit. Balances closer to zero than this
// are considered settled.
var Epsilon = decimal.New(1, -2)

// MemberBalance represents the balance information for one group member.
type MemberBalance struct {
	Member     string
	NetBalance decimal.Decimal // Positive = owed money, Negative = owes money
	TotalPaid  decimal.Decimal // Total amount paid across all expenses
	TotalOwed  decimal.Decimal // Total share of expenses this member participated in
}

// CalculateGroupBalances computes member balances and the settlements that
// clear them for a group.
//
// Algorithm:
// - For each expense: payer contributed +amount, each participant owes amount / len(splitBetween)
// - Aggregate: net_balance = total_paid - total_owed
// - Settlements: greedy matching of the largest debtor with the largest creditor
func CalculateGroupBalances(group *models.Group) ([]MemberBalance, []models.Settlement) {
	if group == nil {
		return nil, nil
	}
	balances := CalculateBalances(group.Members, group.Expenses)
	return balances, SimplifyDebts(group.ID, balances)
}

// CalculateBalances aggregates who paid what and who owes what. Every member
// appears in the result, even with a zero balance, as does any payer or
// participant that is not a member. The result is ordered by member key.
func CalculateBalances(members []models.Member, expenses []models.Expense) []MemberBalance {
	balances := make(map[string]*MemberBalance, len(members))
	get := func(key string) *MemberBalance {
		if bal, exists := balances[key]; exists {
			return bal
		}
		bal := &MemberBalance{Member: key}
		balances[key] = bal
		return bal
	}

	for _, m := range members {
		get(m.Key())
	}

	for _, e := range expenses {
		// Skip expenses that cannot be attributed
		if e.PaidBy == "" {
			continue
		}
		shares, err := SplitEqually(e.Amount, e.SplitBetween)
		if err != nil {
			slog.Debug("Skipping expense in balance calculation", "expense_id", e.ID, "error", err)
			continue
		}

		payer := get(e.PaidBy)
		payer.TotalPaid = payer.TotalPaid.Add(e.Amount)

		for participant, share := range shares {
			p := get(participant)
			p.TotalOwed = p.TotalOwed.Add(share)
		}
	}

	result := make([]MemberBalance, 0, len(balances))
	for _, bal := range balances {
		bal.NetBalance = bal.TotalPaid.Sub(bal.TotalOwed)
		result = append(result, *bal)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Member < result[j].Member })
	return result
}

// SimplifyDebts turns net balances into the transfers that zero them.
//
// The largest debtor always pays the largest creditor min(debt, credit),
// ties going to the lower member key, until every balance is within Epsilon
// of zero. The output is deterministic for a given multiset of balances.
func SimplifyDebts(groupID string, balances []MemberBalance) []models.Settlement {
	debtors := make(map[string]decimal.Decimal)
	creditors := make(map[string]decimal.Decimal)
	for _, bal := range balances {
		switch {
		case bal.NetBalance.LessThanOrEqual(Epsilon.Neg()):
			debtors[bal.Member] = bal.NetBalance.Neg() // Make positive
		case bal.NetBalance.GreaterThanOrEqual(Epsilon):
			creditors[bal.Member] = bal.NetBalance
		}
	}

	var settlements []models.Settlement
	for len(debtors) > 0 && len(creditors) > 0 {
		debtor := largest(debtors)
		creditor := largest(creditors)

		// Amount to settle is minimum of what debtor owes and creditor is owed
		amount := decimal.Min(debtors[debtor], creditors[creditor])

		if rounded := amount.Round(2); rounded.IsPositive() {
			settlements = append(settlements, models.Settlement{
				From:    debtor,
				To:      creditor,
				Amount:  rounded,
				GroupID: groupID,
			})
		}

		debtors[debtor] = debtors[debtor].Sub(amount)
		creditors[creditor] = creditors[creditor].Sub(amount)

		// Drop anyone who is fully settled
		if debtors[debtor].LessThan(Epsilon) {
			delete(debtors, debtor)
		}
		if creditors[creditor].LessThan(Epsilon) {
			delete(creditors, creditor)
		}
	}

	return settlements
}

// largest returns the key with the greatest amount, preferring the lower key on ties.
func largest(amounts map[string]decimal.Decimal) string {
	var best string
	var bestAmount decimal.Decimal
	first := true
	for key, amount := range amounts {
		if first || amount.GreaterThan(bestAmount) || (amount.Equal(bestAmount) && key < best) {
			best, bestAmount, first = key, amount, false
		}
	}
	return best
}
