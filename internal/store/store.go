// Package store holds the client's view of the active user and group.
//
// The Store is the only writer of that view. Local mutations are applied
// optimistically and published on the bus; events from other clients are
// merged as the bus dispatches them. Readers never block: every mutation
// swaps in a new immutable snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mmynk/whobought/internal/calculator"
	"github.com/mmynk/whobought/internal/events"
	"github.com/mmynk/whobought/internal/models"
)

var (
	ErrNoActiveGroup = errors.New("no active group")
	ErrNoSession     = errors.New("no active session")
	ErrUnknownGroup  = errors.New("group is not one of the user's groups")
	// ErrSuperseded is returned by a fetch whose result was discarded because
	// a newer LoadSession, SelectGroup or Logout started while it was in flight.
	ErrSuperseded = errors.New("superseded by a newer selection")
)

// Gateway fetches authoritative snapshots.
type Gateway interface {
	FetchUser(ctx context.Context) (*models.User, error)
	FetchGroup(ctx context.Context, groupID string) (*models.Group, error)
}

// Bus carries mutations to other clients and their events back.
type Bus interface {
	Subscribe(t events.Type, handler events.Handler) *events.Subscription
	Unsubscribe(sub *events.Subscription)
	Publish(ev events.Event) error
}

// Persistence keeps the session between runs.
type Persistence interface {
	Submit(session *models.Session)
	Load(ctx context.Context) *models.Session
}

// Options configure a Store. Gateway is required.
type Options struct {
	Gateway     Gateway
	Bus         Bus
	Persistence Persistence
	Logger      *slog.Logger

	// NewID returns ids for optimistic expenses. Defaults to "pending-<ulid>".
	NewID func() string
	// Now dates drafts that carry no date. Defaults to time.Now.
	Now func() time.Time
}

// snapshot is one immutable version of the store.
type snapshot struct {
	user        *models.User
	group       *models.Group
	balances    []calculator.MemberBalance
	settlements []models.Settlement
}

type watcher struct {
	fn func()
}

// Store is the synchronized client state.
type Store struct {
	gateway     Gateway
	bus         Bus
	persistence Persistence
	logger      *slog.Logger
	newID       func() string
	now         func() time.Time

	state atomic.Pointer[snapshot]

	// mu serializes writers. Network calls never happen while it is held.
	mu         sync.Mutex
	generation uint64
	watchers   []*watcher
	subs       []*events.Subscription
	closed     bool

	// removed holds pending expenses deleted before confirmation, by local id.
	removed map[string]models.Expense
}

// NewPendingID returns a fresh id for an unconfirmed expense.
func NewPendingID() string {
	return "pending-" + ulid.Make().String()
}

// New creates a Store and subscribes it to inbound events.
func New(opts Options) (*Store, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = NewPendingID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		gateway:     opts.Gateway,
		bus:         opts.Bus,
		persistence: opts.Persistence,
		logger:      opts.Logger,
		newID:       opts.NewID,
		now:         opts.Now,
		removed:     make(map[string]models.Expense),
	}
	s.state.Store(&snapshot{})

	if s.bus != nil {
		s.subs = []*events.Subscription{
			s.bus.Subscribe(events.TypeExpenseAdded, s.onExpenseAdded),
			s.bus.Subscribe(events.TypeExpenseUpdated, s.onExpenseUpdated),
			s.bus.Subscribe(events.TypeExpenseDeleted, s.onExpenseDeleted),
			s.bus.Subscribe(events.TypeGroupUpdated, s.onGroupUpdated),
		}
	}
	return s, nil
}

// Close stops merging inbound events. The state stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		s.bus.Unsubscribe(sub)
	}
	s.subs = nil
}

// ActiveUser returns a copy of the signed-in user, or nil.
func (s *Store) ActiveUser() *models.User {
	return s.state.Load().user.Clone()
}

// ActiveGroup returns a copy of the selected group, or nil.
func (s *Store) ActiveGroup() *models.Group {
	return s.state.Load().group.Clone()
}

// Balances returns per-member balances for the active group, ordered by member key.
func (s *Store) Balances() []calculator.MemberBalance {
	return slices.Clone(s.state.Load().balances)
}

// Settlements returns the transfers that settle the active group.
func (s *Store) Settlements() []models.Settlement {
	return slices.Clone(s.state.Load().settlements)
}

// Watch registers fn to be called after every change. fn runs while the
// writer lock is held, so it may read the store but must not mutate it.
// The returned function removes the watcher.
func (s *Store) Watch(fn func()) (cancel func()) {
	w := &watcher{fn: fn}
	s.mu.Lock()
	s.watchers = append(slices.Clone(s.watchers), w)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := slices.Index(s.watchers, w); i >= 0 {
			s.watchers = slices.Delete(slices.Clone(s.watchers), i, i+1)
		}
	}
}

// Restore applies the persisted session when the store is still empty.
// It reports whether anything was restored.
func (s *Store) Restore(ctx context.Context) bool {
	if s.persistence == nil {
		return false
	}
	cached := s.persistence.Load(ctx)
	if cached.Empty() {
		return false
	}

	user := cached.User.Clone()
	group := cached.ActiveGroup.Clone()
	if err := checkCached(user, group); err != nil {
		s.logger.Warn("Dropping persisted session", "error", err)
		s.persistence.Submit(&models.Session{})
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.state.Load()
	if cur.user != nil || cur.group != nil {
		return false
	}
	s.commit(user, group, false)
	s.logger.Info("Session restored", "user_id", userID(user), "group_id", groupID(group))
	return true
}

// checkCached applies the checks a fetched session goes through.
func checkCached(user *models.User, group *models.Group) error {
	if user != nil && user.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if group == nil {
		return nil
	}
	if err := group.ValidateShape(); err != nil {
		return fmt.Errorf("invalid group: %w", err)
	}
	if user != nil && !user.HasGroup(group.ID) {
		return fmt.Errorf("group %s is not one of user %s's groups", group.ID, user.ID)
	}
	return nil
}

// LoadSession fetches the user and one of their groups from the server: the
// active group if it is still theirs, otherwise their first group.
// Both are committed together; on error nothing changes.
func (s *Store) LoadSession(ctx context.Context) error {
	gen := s.nextGeneration()

	user, err := s.gateway.FetchUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || user.ID == "" {
		return fmt.Errorf("failed to load user: empty response")
	}
	user = user.Clone()

	var group *models.Group
	if id := s.pickGroup(user); id != "" {
		group, err = s.fetchGroup(ctx, id)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	s.commit(user, group, true)
	s.logger.Info("Session loaded", "user_id", user.ID, "group_id", groupID(group))
	return nil
}

// SelectGroup makes groupID the active group. The previous group stays
// active until the fetch completes.
func (s *Store) SelectGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	user := s.state.Load().user
	if user == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if !user.HasGroup(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownGroup, id)
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	group, err := s.fetchGroup(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	s.commit(s.state.Load().user, group, true)
	s.logger.Info("Group selected", "group_id", group.ID, "expenses", len(group.Expenses))
	return nil
}

// Logout forgets the user and group, locally and in persistence.
// In-flight fetches are discarded.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	clear(s.removed)
	s.commit(nil, nil, true)
	s.logger.Info("Logged out")
}

// AddExpense records a new expense in the active group right away, with a
// pending id, and publishes it. The returned copy carries that pending id.
func (s *Store) AddExpense(draft models.ExpenseDraft) (models.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	if cur.group == nil {
		return models.Expense{}, ErrNoActiveGroup
	}
	if err := draft.Validate(cur.group); err != nil {
		return models.Expense{}, err
	}

	id := s.newID()
	expense := models.Expense{
		ID:           id,
		LocalID:      id,
		Description:  draft.Description,
		Amount:       draft.Amount,
		PaidBy:       draft.PaidBy,
		SplitBetween: slices.Clone(draft.SplitBetween),
		Date:         draft.Date,
		GroupID:      cur.group.ID,
		Status:       models.StatusPending,
	}
	if expense.Date.IsZero() {
		expense.Date = s.now().UTC()
	}

	expenses := append(slices.Clone(cur.group.Expenses), expense)
	s.commit(cur.user, cur.group.WithExpenses(expenses), true)

	wire := expense.Clone()
	wire.Status = ""
	s.publish(events.ExpenseAdded{Expense: wire})
	return expense.Clone(), nil
}

// RemoveExpense deletes the expense from the active group and publishes the
// deletion. An unknown id is a no-op.
//
// A pending expense has no server id yet, so nothing is published. It is
// set aside as removed; when the server confirms it, the confirmed copy is
// deleted instead of shown.
func (s *Store) RemoveExpense(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	if cur.group == nil {
		return ErrNoActiveGroup
	}
	i := cur.group.ExpenseIndex(id)
	if i < 0 {
		return nil
	}

	expense := cur.group.Expenses[i]
	expenses := slices.Delete(slices.Clone(cur.group.Expenses), i, i+1)
	s.commit(cur.user, cur.group.WithExpenses(expenses), true)

	if expense.Pending() && expense.LocalID != "" {
		expense = expense.Clone()
		expense.Status = models.StatusRemoved
		s.removed[expense.LocalID] = expense
		s.logger.Debug("Pending expense removed before confirmation", "local_id", expense.LocalID)
		return nil
	}
	s.publish(events.ExpenseDeleted{ExpenseID: id})
	return nil
}

// ClearExpenses empties the active group's expenses. Other clients are not told.
func (s *Store) ClearExpenses() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.state.Load()
	if cur.group == nil {
		return ErrNoActiveGroup
	}
	s.commit(cur.user, cur.group.WithExpenses([]models.Expense{}), true)
	return nil
}

func (s *Store) nextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Store) pickGroup(user *models.User) string {
	if cur := s.state.Load().group; cur != nil && user.HasGroup(cur.ID) {
		return cur.ID
	}
	if len(user.GroupIDs) > 0 {
		return user.GroupIDs[0]
	}
	return ""
}

// fetchGroup fetches and checks a group snapshot. Every expense in it is confirmed.
func (s *Store) fetchGroup(ctx context.Context, id string) (*models.Group, error) {
	group, err := s.gateway.FetchGroup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group %s: %w", id, err)
	}
	if err := group.ValidateShape(); err != nil {
		return nil, fmt.Errorf("invalid group %s: %w", id, err)
	}
	if group.ID != id {
		return nil, fmt.Errorf("invalid group %s: server returned %s", id, group.ID)
	}
	return confirmed(group), nil
}

// commit swaps in a new snapshot, notifies watchers and, when persist is
// set, hands the session to persistence. Callers hold mu.
func (s *Store) commit(user *models.User, group *models.Group, persist bool) {
	next := &snapshot{user: user, group: group}
	next.balances, next.settlements = calculator.CalculateGroupBalances(group)
	s.state.Store(next)

	if persist && s.persistence != nil {
		s.persistence.Submit(&models.Session{User: user, ActiveGroup: group})
	}
	for _, w := range s.watchers {
		s.notify(w)
	}
}

func (s *Store) notify(w *watcher) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Store watcher panicked", "panic", r)
		}
	}()
	w.fn()
}

// publish hands ev to the bus. Failure leaves the local change in place.
func (s *Store) publish(ev events.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ev); err != nil {
		s.logger.Warn("Failed to publish event", "type", ev.Type(), "error", err)
	}
}

// confirmed returns a copy of group with every expense marked confirmed.
func confirmed(group *models.Group) *models.Group {
	c := group.Clone()
	if c.Expenses == nil {
		c.Expenses = []models.Expense{}
	}
	for i := range c.Expenses {
		c.Expenses[i].Status = models.StatusConfirmed
	}
	return c
}

func userID(u *models.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func groupID(g *models.Group) string {
	if g == nil {
		return ""
	}
	return g.ID
}
