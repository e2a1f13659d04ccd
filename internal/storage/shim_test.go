package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/whobought/internal/models"
)

// fakeStore records writes. When gate is set, Save blocks until it receives.
type fakeStore struct {
	mu      sync.Mutex
	saved   []*models.Session
	clears  int
	loadErr error
	saveErr error
	current *models.Session

	gate    chan struct{}
	started chan struct{}
}

func (f *fakeStore) Save(ctx context.Context, session *models.Session) error {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, session)
	f.current = session
	return nil
}

func (f *fakeStore) Load(ctx context.Context) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.loadErr
}

func (f *fakeStore) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.current = nil
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) savedUserIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.saved))
	for i, s := range f.saved {
		ids[i] = s.User.ID
	}
	return ids
}

func sessionFor(userID string) *models.Session {
	return &models.Session{User: &models.User{ID: userID}}
}

func TestShim_CoalescesWhileWriting(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{}), started: make(chan struct{}, 8)}
	shim := NewShim(store, nil)

	shim.Submit(sessionFor("u1"))
	select {
	case <-store.started:
	case <-time.After(time.Second):
		t.Fatal("first write never started")
	}

	// The writer is blocked on u1; these three collapse into one write.
	shim.Submit(sessionFor("u2"))
	shim.Submit(sessionFor("u3"))
	shim.Submit(sessionFor("u4"))

	close(store.gate)
	shim.Close()

	got := store.savedUserIDs()
	if len(got) != 2 || got[0] != "u1" || got[1] != "u4" {
		t.Errorf("saved = %v, want [u1 u4]", got)
	}
}

func TestShim_EmptySessionClears(t *testing.T) {
	store := &fakeStore{current: sessionFor("u1")}
	shim := NewShim(store, nil)

	shim.Submit(&models.Session{})
	shim.Close()

	if store.clears != 1 {
		t.Errorf("clears = %d, want 1", store.clears)
	}
	if len(store.saved) != 0 {
		t.Errorf("expected no saves, got %d", len(store.saved))
	}
}

func TestShim_CloseIsIdempotentAndDropsLateSubmits(t *testing.T) {
	store := &fakeStore{}
	shim := NewShim(store, nil)
	shim.Close()
	shim.Close()

	shim.Submit(sessionFor("late"))
	if got := store.savedUserIDs(); len(got) != 0 {
		t.Errorf("expected no writes after Close, got %v", got)
	}
}

func TestShim_SaveErrorIsSwallowed(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	shim := NewShim(store, nil)

	shim.Submit(sessionFor("u1"))
	shim.Close()
}

func TestShim_Load(t *testing.T) {
	tests := []struct {
		name    string
		store   *fakeStore
		wantNil bool
	}{
		{name: "returns stored session", store: &fakeStore{current: sessionFor("u1")}},
		{name: "absent record", store: &fakeStore{}, wantNil: true},
		{name: "read failure", store: &fakeStore{current: sessionFor("u1"), loadErr: errors.New("corrupt")}, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shim := NewShim(tt.store, nil)
			defer shim.Close()

			got := shim.Load(context.Background())
			if (got == nil) != tt.wantNil {
				t.Errorf("Load() = %+v, wantNil %v", got, tt.wantNil)
			}
		})
	}
}
