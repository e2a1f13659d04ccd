package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/mmynk/whobought/internal/auth"
	"github.com/mmynk/whobought/internal/models"
)

// setupTestServer serves a fixed user and group under /api/v1/whobought.
func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/whobought/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "authentication required"})
			return
		}
		json.NewEncoder(w).Encode(models.User{
			ID:       "u1",
			Name:     "Alice",
			Email:    "alice@example.com",
			GroupIDs: []string{"g1"},
		})
	})
	mux.HandleFunc("GET /api/v1/whobought/group/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("id") {
		case "g1":
			w.Write([]byte(`{
				"id": "g1",
				"name": "Roommates",
				"members": [{"name": "Alice", "email": "alice@example.com"}],
				"expenses": [{
					"id": "e1", "description": "Rent", "amount": 1200.50,
					"paidBy": "alice@example.com", "splitBetween": ["alice@example.com"],
					"date": "2024-03-01T00:00:00Z", "groupId": "g1"
				}]
			}`))
		case "broken":
			w.Write([]byte(`{"id": `))
		case "boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Group not found"})
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	return s
}

func TestFetchUser(t *testing.T) {
	server := setupTestServer(t)
	client := New(server.URL+"/api/v1/whobought/", Options{Token: signedToken(t, time.Now().Add(time.Hour))})

	user, err := client.FetchUser(context.Background())
	if err != nil {
		t.Fatalf("FetchUser failed: %v", err)
	}
	if user.ID != "u1" || user.Name != "Alice" {
		t.Errorf("unexpected user: %+v", user)
	}
	if !user.HasGroup("g1") {
		t.Errorf("expected user to belong to g1, got %v", user.GroupIDs)
	}
}

func TestFetchUser_Unauthenticated(t *testing.T) {
	server := setupTestServer(t)
	client := New(server.URL+"/api/v1/whobought", Options{})

	_, err := client.FetchUser(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "authentication required" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestFetchUser_ExpiredToken(t *testing.T) {
	server := setupTestServer(t)
	client := New(server.URL+"/api/v1/whobought", Options{Token: signedToken(t, time.Now().Add(-time.Hour))})

	_, err := client.FetchUser(context.Background())
	if !errors.Is(err, auth.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestFetchGroup(t *testing.T) {
	server := setupTestServer(t)
	client := New(server.URL+"/api/v1/whobought", Options{})
	ctx := context.Background()

	t.Run("returns members and expenses", func(t *testing.T) {
		group, err := client.FetchGroup(ctx, "g1")
		if err != nil {
			t.Fatalf("FetchGroup failed: %v", err)
		}
		if group.Name != "Roommates" || len(group.Members) != 1 || len(group.Expenses) != 1 {
			t.Fatalf("unexpected group: %+v", group)
		}
		if !group.Expenses[0].Amount.Equal(decimal.RequireFromString("1200.50")) {
			t.Errorf("Amount = %s", group.Expenses[0].Amount)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := client.FetchGroup(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "Group not found" {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})

	t.Run("server error without body", func(t *testing.T) {
		_, err := client.FetchGroup(ctx, "boom")
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
			t.Errorf("expected 500 APIError, got %v", err)
		}
		if errors.Is(err, ErrNotFound) {
			t.Error("500 must not match ErrNotFound")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		if _, err := client.FetchGroup(ctx, "broken"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("empty id", func(t *testing.T) {
		if _, err := client.FetchGroup(ctx, ""); err == nil {
			t.Error("expected error for empty id")
		}
	})
}

func TestFetchGroup_ContextCanceled(t *testing.T) {
	server := setupTestServer(t)
	client := New(server.URL+"/api/v1/whobought", Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.FetchGroup(ctx, "g1"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
