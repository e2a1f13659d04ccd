// Package events is the typed publish/subscribe layer that sits on top of the
// push connection.
//
// Every message on the wire is a Frame {"type": ..., "payload": ...}. The bus
// turns frames into one of the Event variants below and hands them to local
// subscribers, and turns published events back into frames for the sender.
package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmynk/whobought/internal/models"
)

// Type names an event on the wire.
type Type string

const (
	TypeExpenseAdded   Type = "EXPENSE_ADDED"
	TypeExpenseDeleted Type = "EXPENSE_DELETED"
	TypeExpenseUpdated Type = "EXPENSE_UPDATED"
	TypeGroupUpdated   Type = "GROUP_UPDATED"
)

// Types lists every event type the bus understands.
var Types = []Type{TypeExpenseAdded, TypeExpenseDeleted, TypeExpenseUpdated, TypeGroupUpdated}

var ErrUnknownType = errors.New("unknown event type")

// Frame is the wire record exchanged over the connection.
type Frame struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Event is a decoded frame. The concrete type is one of ExpenseAdded,
// ExpenseDeleted, ExpenseUpdated or GroupUpdated.
type Event interface {
	Type() Type
	payload() any
}

// ExpenseAdded carries the full expense that was created.
type ExpenseAdded struct {
	Expense models.Expense
}

// ExpenseUpdated carries the full expense after the change.
type ExpenseUpdated struct {
	Expense models.Expense
}

// ExpenseDeleted carries only the id of the removed expense.
type ExpenseDeleted struct {
	ExpenseID string
}

// GroupUpdated carries a complete group snapshot.
type GroupUpdated struct {
	Group models.Group
}

func (ExpenseAdded) Type() Type   { return TypeExpenseAdded }
func (ExpenseUpdated) Type() Type { return TypeExpenseUpdated }
func (ExpenseDeleted) Type() Type { return TypeExpenseDeleted }
func (GroupUpdated) Type() Type   { return TypeGroupUpdated }

func (e ExpenseAdded) payload() any   { return e.Expense }
func (e ExpenseUpdated) payload() any { return e.Expense }
func (e ExpenseDeleted) payload() any { return e.ExpenseID }
func (e GroupUpdated) payload() any   { return e.Group }

// Encode turns an event into its wire frame.
func Encode(ev Event) (Frame, error) {
	payload, err := json.Marshal(ev.payload())
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s payload: %w", ev.Type(), err)
	}
	return Frame{Type: ev.Type(), Payload: payload}, nil
}

// Decode turns a frame into its typed event. Only the JSON shape is checked;
// whether the content makes sense is up to the subscriber.
func Decode(f Frame) (Event, error) {
	switch f.Type {
	case TypeExpenseAdded:
		var e models.Expense
		if err := json.Unmarshal(f.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", f.Type, err)
		}
		return ExpenseAdded{Expense: e}, nil
	case TypeExpenseUpdated:
		var e models.Expense
		if err := json.Unmarshal(f.Payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", f.Type, err)
		}
		return ExpenseUpdated{Expense: e}, nil
	case TypeExpenseDeleted:
		var id string
		if err := json.Unmarshal(f.Payload, &id); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", f.Type, err)
		}
		return ExpenseDeleted{ExpenseID: id}, nil
	case TypeGroupUpdated:
		var g models.Group
		if err := json.Unmarshal(f.Payload, &g); err != nil {
			return nil, fmt.Errorf("failed to decode %s payload: %w", f.Type, err)
		}
		return GroupUpdated{Group: g}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
}
