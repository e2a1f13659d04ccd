package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SplitEqually computes each participant's share of an amount.
// Based on the rule: share = amount / number_of_participants.
// Listing a participant twice gives them two shares.
func SplitEqually(amount decimal.Decimal, participants []string) (map[string]decimal.Decimal, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount)
	}

	share := amount.Div(decimal.NewFromInt(int64(len(participants))))
	shares := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		shares[p] = shares[p].Add(share)
	}
	return shares, nil
}
