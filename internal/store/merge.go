package store

import (
	"slices"

	"github.com/mmynk/whobought/internal/events"
	"github.com/mmynk/whobought/internal/metrics"
	"github.com/mmynk/whobought/internal/models"
)

// Merge outcomes, used as the metrics label.
const (
	outcomeAppended   = "appended"
	outcomeReplaced   = "replaced"
	outcomeConfirmed  = "confirmed"
	outcomeRemoved    = "removed"
	outcomeIgnored    = "ignored"
	outcomeOtherGroup = "other_group"
	outcomeNoGroup    = "no_group"
	outcomeInvalid    = "invalid"
	outcomeClosed     = "closed"
	outcomeRetracted  = "retracted"
)

func (s *Store) record(t events.Type, outcome string) {
	metrics.Merges.WithLabelValues(string(t), outcome).Inc()
}

// mergeTarget returns the current snapshot for an inbound event, or the
// outcome that stops the merge when there is nothing to merge into. Callers hold mu.
func (s *Store) mergeTarget() (*snapshot, string) {
	if s.closed {
		return nil, outcomeClosed
	}
	cur := s.state.Load()
	if cur.group == nil {
		return nil, outcomeNoGroup
	}
	return cur, ""
}

func (s *Store) rejectExpense(t events.Type, expense models.Expense, err error) {
	s.record(t, outcomeInvalid)
	s.logger.Warn("Dropping invalid event", "type", t, "expense_id", expense.ID, "error", err)
}

// onExpenseAdded confirms a pending copy of the expense or records it.
func (s *Store) onExpenseAdded(ev events.Event) {
	added := ev.(events.ExpenseAdded).Expense
	t := ev.Type()
	if err := added.ValidateShape(); err != nil {
		s.rejectExpense(t, added, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed && s.retract(added) {
		s.record(t, outcomeRetracted)
		return
	}
	cur, stop := s.mergeTarget()
	if stop != "" {
		s.record(t, stop)
		return
	}
	if added.GroupID != cur.group.ID {
		s.record(t, outcomeOtherGroup)
		return
	}

	added = added.Clone()
	added.Status = models.StatusConfirmed
	expenses := slices.Clone(cur.group.Expenses)

	outcome := outcomeAppended
	if i := cur.group.ExpenseIndex(added.ID); i >= 0 {
		expenses[i] = added
		outcome = outcomeReplaced
	} else if i := pendingMatch(expenses, added); i >= 0 {
		expenses[i] = added
		outcome = outcomeConfirmed
	} else {
		expenses = append(expenses, added)
	}

	s.commit(cur.user, cur.group.WithExpenses(expenses), true)
	s.record(t, outcome)
	s.logger.Debug("Expense merged", "expense_id", added.ID, "outcome", outcome)
}

// retract reports whether added confirms a pending expense the user already
// removed. If so the removal is completed by deleting the server copy, now
// that it has an id. Callers hold mu.
func (s *Store) retract(added models.Expense) bool {
	if added.LocalID == "" {
		return false
	}
	removed, ok := s.removed[added.LocalID]
	if !ok || removed.GroupID != added.GroupID {
		return false
	}
	delete(s.removed, added.LocalID)

	if cur := s.state.Load(); cur.group != nil && cur.group.ID == added.GroupID {
		if i := cur.group.ExpenseIndex(added.ID); i >= 0 {
			expenses := slices.Delete(slices.Clone(cur.group.Expenses), i, i+1)
			s.commit(cur.user, cur.group.WithExpenses(expenses), true)
		}
	}
	s.publish(events.ExpenseDeleted{ExpenseID: added.ID})
	s.logger.Debug("Deleting confirmed copy of removed expense", "expense_id", added.ID, "local_id", added.LocalID)
	return true
}

// pendingMatch finds the pending expense the server is confirming: first by
// the local id it echoes, then by identical content.
func pendingMatch(expenses []models.Expense, added models.Expense) int {
	if added.LocalID != "" {
		i := slices.IndexFunc(expenses, func(e models.Expense) bool {
			return e.Pending() && e.LocalID == added.LocalID
		})
		if i >= 0 {
			return i
		}
	}
	return slices.IndexFunc(expenses, func(e models.Expense) bool {
		return e.Pending() && e.SameContent(added)
	})
}

// onExpenseUpdated replaces a known expense. Unknown ids are ignored.
func (s *Store) onExpenseUpdated(ev events.Event) {
	updated := ev.(events.ExpenseUpdated).Expense
	t := ev.Type()
	if err := updated.ValidateShape(); err != nil {
		s.rejectExpense(t, updated, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, stop := s.mergeTarget()
	if stop != "" {
		s.record(t, stop)
		return
	}
	if updated.GroupID != cur.group.ID {
		s.record(t, outcomeOtherGroup)
		return
	}
	i := cur.group.ExpenseIndex(updated.ID)
	if i < 0 {
		s.record(t, outcomeIgnored)
		return
	}

	updated = updated.Clone()
	updated.Status = models.StatusConfirmed
	expenses := slices.Clone(cur.group.Expenses)
	expenses[i] = updated

	s.commit(cur.user, cur.group.WithExpenses(expenses), true)
	s.record(t, outcomeReplaced)
}

// onExpenseDeleted removes the expense from the active group, if present.
func (s *Store) onExpenseDeleted(ev events.Event) {
	id := ev.(events.ExpenseDeleted).ExpenseID
	t := ev.Type()
	if id == "" {
		s.record(t, outcomeInvalid)
		s.logger.Warn("Dropping invalid event", "type", t, "error", "expense id is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, stop := s.mergeTarget()
	if stop != "" {
		s.record(t, stop)
		return
	}
	i := cur.group.ExpenseIndex(id)
	if i < 0 {
		s.record(t, outcomeIgnored)
		return
	}

	expenses := slices.Delete(slices.Clone(cur.group.Expenses), i, i+1)
	s.commit(cur.user, cur.group.WithExpenses(expenses), true)
	s.record(t, outcomeRemoved)
}

// onGroupUpdated replaces the active group wholesale. Pending expenses the
// snapshot does not contain are gone.
func (s *Store) onGroupUpdated(ev events.Event) {
	group := ev.(events.GroupUpdated).Group
	t := ev.Type()
	if err := group.ValidateShape(); err != nil {
		s.record(t, outcomeInvalid)
		s.logger.Warn("Dropping invalid event", "type", t, "group_id", group.ID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, stop := s.mergeTarget()
	if stop != "" {
		s.record(t, stop)
		return
	}
	if group.ID != cur.group.ID {
		s.record(t, outcomeOtherGroup)
		return
	}

	replaced := confirmed(&group)
	kept := replaced.Expenses[:0]
	for _, e := range replaced.Expenses {
		if removed, ok := s.removed[e.LocalID]; ok && e.LocalID != "" && removed.GroupID == e.GroupID {
			delete(s.removed, e.LocalID)
			s.publish(events.ExpenseDeleted{ExpenseID: e.ID})
			continue
		}
		kept = append(kept, e)
	}
	replaced.Expenses = kept

	s.commit(cur.user, replaced, true)
	s.record(t, outcomeReplaced)
	s.logger.Debug("Group replaced", "group_id", group.ID, "expenses", len(group.Expenses))
}
