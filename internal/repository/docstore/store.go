// Package docstore defines the keyed document store the workflows persist through.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a conditional update's expectation does not hold.
	ErrConflict = errors.New("document precondition failed")
	// ErrBelowFloor is returned when an increment would push a field under its floor.
	ErrBelowFloor = errors.New("increment below floor")
)

// Fields is a shallow set of document field values keyed by stored field name.
type Fields map[string]any

// IncrementOptions tunes Store.Increment.
type IncrementOptions struct {
	// Floor, when set, rejects the increment if the resulting value would be lower.
	Floor *int64
	// Upsert creates the document when missing. Ignored when Floor is set.
	Upsert bool
	// Set fields are written in the same atomic update.
	Set Fields
	// SetOnInsert fields are written only when the document is created.
	SetOnInsert Fields
}

// Store is the persistence surface used by the engine. Documents are addressed
// by collection and id; Append lets the store assign the id.
type Store interface {
	Get(ctx context.Context, collection, id string, dest any) error
	Set(ctx context.Context, collection, id string, value any) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	// UpdateIf applies fields only when every expect entry matches the stored document.
	UpdateIf(ctx context.Context, collection, id string, expect, fields Fields) error
	Append(ctx context.Context, collection string, value any) (string, error)
	// Increment atomically adds delta to an integer field and returns the new value.
	Increment(ctx context.Context, collection, id, field string, delta int64, opts IncrementOptions) (int64, error)
	// Find decodes every document matching the equality filter into dest, a pointer to a slice,
	// in creation order.
	Find(ctx context.Context, collection string, filter Fields, dest any) error
}

// Floor returns a pointer usable as IncrementOptions.Floor.
func Floor(v int64) *int64 {
	return &v
}
