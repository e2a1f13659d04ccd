// Package models defines the core domain models for whobought.
//
// # Models
//
//   - User: the authenticated account and the ids of the groups it belongs to
//   - Group: a shared expense pool with its members and expenses
//   - Member: a participant in a group, keyed by email
//   - Expense: a single recorded cost, split equally between participants
//   - Settlement: a derived transfer between two members (never persisted)
//   - Session: the persisted pair of active user and active group
//
// # Design Principles
//
//  1. **Immutable snapshots**: collections are replaced, never mutated in place,
//     so a Group handed to a reader is never half-updated
//  2. **References by key**: expenses refer to members by email, not by pointer
//  3. **Wire shape = storage shape**: JSON tags match the push-event and REST
//     payloads, and the same encoding is used for the persisted session
//
// # Expense Lifecycle
//
// An expense created locally starts as StatusPending with a locally generated
// id. It becomes StatusConfirmed once an authoritative event (or a group
// snapshot) supplies the server's copy, or it disappears when removed.
package models
