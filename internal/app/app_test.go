package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/mmynk/whobought/internal/config"
	"github.com/mmynk/whobought/internal/events"
	"github.com/mmynk/whobought/internal/models"
)

// backend serves the REST API and the push endpoint. Every EXPENSE_ADDED it
// receives is echoed back to all clients with a server id.
type backend struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []events.Frame
	failREST bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/whobought/user", func(w http.ResponseWriter, r *http.Request) {
		if b.restDown(w) {
			return
		}
		json.NewEncoder(w).Encode(models.User{ID: "u1", Name: "Alice", Email: "alice@example.com", GroupIDs: []string{"g1"}})
	})
	mux.HandleFunc("GET /api/v1/whobought/group/{id}", func(w http.ResponseWriter, r *http.Request) {
		if b.restDown(w) {
			return
		}
		json.NewEncoder(w).Encode(models.Group{
			ID:   r.PathValue("id"),
			Name: "Roommates",
			Members: []models.Member{
				{Name: "Alice", Email: "alice@example.com"},
				{Name: "Bob", Email: "bob@example.com"},
			},
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, ws)
		b.mu.Unlock()

		for {
			_, message, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var f events.Frame
			if err := json.Unmarshal(message, &f); err != nil {
				continue
			}
			b.mu.Lock()
			b.received = append(b.received, f)
			b.mu.Unlock()
			if f.Type == events.TypeExpenseAdded {
				b.confirm(ws, f)
			}
		}
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(func() {
		b.mu.Lock()
		for _, ws := range b.conns {
			ws.Close()
		}
		b.mu.Unlock()
		b.Close()
	})
	return b
}

func (b *backend) restDown(w http.ResponseWriter) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failREST {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"message":"maintenance"}`))
	}
	return b.failREST
}

func (b *backend) confirm(ws *websocket.Conn, f events.Frame) {
	var e models.Expense
	if err := json.Unmarshal(f.Payload, &e); err != nil {
		return
	}
	e.ID = "srv-" + strings.TrimPrefix(e.LocalID, "pending-")
	payload, _ := json.Marshal(e)
	ws.WriteJSON(events.Frame{Type: events.TypeExpenseAdded, Payload: payload})
}

func (b *backend) config(statePath string) config.Config {
	return config.Config{
		APIURL:         b.URL + "/api/v1/whobought",
		WSURL:          "ws" + strings.TrimPrefix(b.URL, "http") + "/ws",
		StateBackend:   config.BackendSQLite,
		StatePath:      statePath,
		ReconnectDelay: 50 * time.Millisecond,
		QueueSize:      16,
		HTTPTimeout:    2 * time.Second,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestApp_AddExpenseRoundTrip(t *testing.T) {
	b := newBackend(t)
	statePath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	a, err := New(ctx, b.config(statePath), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	assert.Equal(t, a.Store.ActiveGroup().ID, "g1")

	pending, err := a.Store.AddExpense(models.ExpenseDraft{
		Description:  "Pizza",
		Amount:       mustDecimal(t, "24"),
		PaidBy:       "alice@example.com",
		SplitBetween: []string{"alice@example.com", "bob@example.com"},
		Date:         time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("AddExpense failed: %v", err)
	}
	assert.Equal(t, pending.Pending(), true)

	want := "srv-" + strings.TrimPrefix(pending.ID, "pending-")
	waitFor(t, "server confirmation", func() bool {
		g := a.Store.ActiveGroup()
		return len(g.Expenses) == 1 && g.Expenses[0].ID == want
	})

	g := a.Store.ActiveGroup()
	assert.Equal(t, g.Expenses[0].Status, models.StatusConfirmed)

	settlements := a.Store.Settlements()
	assert.Equal(t, len(settlements), 1)
	assert.Equal(t, settlements[0].From, "bob@example.com")
	assert.Equal(t, settlements[0].To, "alice@example.com")
	assert.Equal(t, settlements[0].Amount.Equal(decimal.NewFromInt(12)), true)
}

func TestApp_RestoresCachedSession(t *testing.T) {
	b := newBackend(t)
	statePath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	first, err := New(ctx, b.config(statePath), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := first.Store.ClearExpenses(); err != nil {
		t.Fatalf("ClearExpenses failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b.mu.Lock()
	b.failREST = true
	b.mu.Unlock()

	second, err := New(ctx, b.config(statePath), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer second.Close()

	if err := second.Start(ctx); err == nil {
		t.Fatal("expected refresh error while the API is down")
	}
	user := second.Store.ActiveUser()
	if user == nil || user.ID != "u1" {
		t.Fatalf("expected cached user, got %+v", user)
	}
	assert.Equal(t, second.Store.ActiveGroup().ID, "g1")
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := config.Config{StateBackend: "postgres"}
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}
