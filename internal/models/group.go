package models

import "slices"

// Group represents a shared expense pool.
//
// Members and Expenses are treated as immutable once a Group is published by
// the store. Writers build a new slice and swap it in.
type Group struct {
	// ID is the unique identifier for the group. It never changes.
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string `json:"name"`

	// Members is the set of participants. Email is unique within a group.
	Members []Member `json:"members"`

	// Expenses is the ordered sequence of recorded costs.
	Expenses []Expense `json:"expenses"`
}

// Member is a participant in a group. Members are not necessarily registered users.
type Member struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Key returns the reference used by Expense.PaidBy and Expense.SplitBetween.
func (m Member) Key() string {
	return m.Email
}

// Member looks up a member by key.
func (g *Group) Member(key string) (Member, bool) {
	if g == nil {
		return Member{}, false
	}
	for _, m := range g.Members {
		if m.Key() == key {
			return m, true
		}
	}
	return Member{}, false
}

// ExpenseIndex returns the position of the expense with the given id, or -1.
func (g *Group) ExpenseIndex(id string) int {
	if g == nil {
		return -1
	}
	return slices.IndexFunc(g.Expenses, func(e Expense) bool { return e.ID == id })
}

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = slices.Clone(g.Members)
	if g.Expenses != nil {
		c.Expenses = make([]Expense, len(g.Expenses))
		for i, e := range g.Expenses {
			c.Expenses[i] = e.Clone()
		}
	}
	return &c
}

// WithExpenses returns a shallow copy of the group that uses the given expense
// sequence. The receiver is left untouched.
func (g *Group) WithExpenses(expenses []Expense) *Group {
	c := *g
	c.Expenses = expenses
	return &c
}

// ValidateShape checks a group snapshot received from the server.
// Every expense must belong to the group and carry an id.
func (g *Group) ValidateShape() error {
	verr := &ValidationError{}
	if g == nil {
		verr.add("group", "group is required")
		return verr
	}
	if g.ID == "" {
		verr.add("id", "id is required")
	}
	emails := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if emails[m.Email] {
			verr.add("members", "duplicate member email "+m.Email)
			break
		}
		emails[m.Email] = true
	}
	for _, e := range g.Expenses {
		if e.ID == "" {
			verr.add("expenses", "expense id is required")
			break
		}
		if e.GroupID != g.ID {
			verr.add("expenses", "expense "+e.ID+" belongs to group "+e.GroupID)
			break
		}
		if e.Amount.IsNegative() {
			verr.add("expenses", "expense "+e.ID+" has a negative amount")
			break
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}
