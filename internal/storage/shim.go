package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/whobought/internal/models"
)

const shimWriteTimeout = 5 * time.Second

// Shim is a fire-and-forget front for a Store.
//
// Submit never blocks. A single background writer persists the most recent
// snapshot; snapshots submitted while a write is in flight replace each
// other so only the latest is written. Failures are logged and dropped.
type Shim struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending *models.Session
	dirty   bool
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewShim starts the background writer for store.
func NewShim(store Store, logger *slog.Logger) *Shim {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Shim{
		store:  store,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Submit schedules session to be persisted. An empty session clears the record.
func (s *Shim) Submit(session *models.Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Persistence closed, dropping snapshot")
		return
	}
	s.pending = session
	s.dirty = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Load returns the persisted session, or nil when there is none or it
// cannot be read.
func (s *Shim) Load(ctx context.Context) *models.Session {
	session, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("Failed to load persisted session", "error", err)
		return nil
	}
	return session
}

// Close writes any pending snapshot and stops the writer. It does not close
// the underlying Store.
func (s *Shim) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Shim) run() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
			s.flush()
		case <-s.stop:
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			s.flush()
			return
		}
	}
}

func (s *Shim) flush() {
	s.mu.Lock()
	session, dirty := s.pending, s.dirty
	s.pending, s.dirty = nil, false
	s.mu.Unlock()
	if !dirty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shimWriteTimeout)
	defer cancel()

	var err error
	if session.Empty() {
		err = s.store.Clear(ctx)
	} else {
		err = s.store.Save(ctx, session)
	}
	if err != nil {
		s.logger.Warn("Failed to persist session", "error", err)
	}
}
