package models

import "github.com/shopspring/decimal"

// Settlement is a net transfer that clears debts between two members.
// Settlements are derived from the current expenses and never stored.
type Settlement struct {
	// From is the member key of the debtor.
	From string `json:"from"`

	// To is the member key of the creditor.
	To string `json:"to"`

	// Amount is always positive.
	Amount decimal.Decimal `json:"amount"`

	// GroupID is the group the settlement belongs to.
	GroupID string `json:"groupId"`
}
