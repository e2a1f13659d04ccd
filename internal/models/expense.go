package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseStatus tracks where an expense is in its optimistic lifecycle.
type ExpenseStatus string

const (
	// StatusPending marks a locally created expense that the server has not confirmed.
	StatusPending ExpenseStatus = "pending"
	// StatusConfirmed marks an expense whose content came from the server.
	StatusConfirmed ExpenseStatus = "confirmed"
	// StatusRemoved marks a pending expense the user removed before the server
	// confirmed it. It is kept aside, never shown, until the confirmation
	// arrives and the server copy can be deleted.
	StatusRemoved ExpenseStatus = "removed"
)

// Expense represents a single recorded cost, split equally between participants.
type Expense struct {
	// ID is assigned by the server. While pending it holds the local id.
	ID string `json:"id"`

	// LocalID is the id the creating client gave the expense before it was
	// confirmed. The server echoes it back so the pending copy can be found.
	LocalID string `json:"localId,omitempty"`

	// Description is a short label (e.g., "Groceries").
	Description string `json:"description"`

	// Amount is the total cost. Never negative.
	Amount decimal.Decimal `json:"amount"`

	// PaidBy is the member key (email) of the payer.
	PaidBy string `json:"paidBy"`

	// SplitBetween lists the member keys sharing the cost equally.
	SplitBetween []string `json:"splitBetween"`

	// Date is when the expense occurred.
	Date time.Time `json:"date"`

	// GroupID is the owning group.
	GroupID string `json:"groupId"`

	// Status is local bookkeeping; the server never sets it.
	Status ExpenseStatus `json:"status,omitempty"`
}

// Pending reports whether the expense still awaits confirmation.
func (e Expense) Pending() bool {
	return e.Status == StatusPending
}

// Clone returns a copy that shares no slices with the receiver.
func (e Expense) Clone() Expense {
	e.SplitBetween = slices.Clone(e.SplitBetween)
	return e
}

// SameContent reports whether two expenses describe the same cost, ignoring
// ids and status. Participant order is not significant.
func (e Expense) SameContent(other Expense) bool {
	if e.GroupID != other.GroupID ||
		e.Description != other.Description ||
		e.PaidBy != other.PaidBy ||
		!e.Amount.Equal(other.Amount) ||
		!e.Date.Equal(other.Date) ||
		len(e.SplitBetween) != len(other.SplitBetween) {
		return false
	}
	a := slices.Clone(e.SplitBetween)
	b := slices.Clone(other.SplitBetween)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// ValidateShape checks the fields every authoritative expense payload must carry.
func (e Expense) ValidateShape() error {
	verr := &ValidationError{}
	if e.ID == "" {
		verr.add("id", "id is required")
	}
	if e.GroupID == "" {
		verr.add("groupId", "groupId is required")
	}
	if e.Amount.IsNegative() {
		verr.add("amount", "amount must not be negative")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ExpenseDraft is what the presentation layer submits to record a new expense.
type ExpenseDraft struct {
	Description  string
	Amount       decimal.Decimal
	PaidBy       string
	SplitBetween []string
	Date         time.Time
}

// Validate checks the draft against the members of the group it is added to.
func (d ExpenseDraft) Validate(group *Group) error {
	verr := &ValidationError{}
	if d.Description == "" {
		verr.add("description", "description is required")
	}
	if d.Amount.IsNegative() {
		verr.add("amount", "amount must not be negative")
	}
	if _, ok := group.Member(d.PaidBy); !ok {
		verr.add("paidBy", "payer must be a member of the group")
	}
	if len(d.SplitBetween) == 0 {
		verr.add("splitBetween", "at least one participant is required")
	}
	seen := make(map[string]bool, len(d.SplitBetween))
	for _, p := range d.SplitBetween {
		if _, ok := group.Member(p); !ok {
			verr.add("splitBetween", "participant "+p+" is not a member of the group")
			break
		}
		if seen[p] {
			verr.add("splitBetween", "participant "+p+" is listed twice")
			break
		}
		seen[p] = true
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func init() {
	// Amounts travel as JSON numbers, matching the REST and push-event payloads.
	decimal.MarshalJSONWithoutQuotes = true
}
