package store

import (
	"context"
	"errors"
)

// ErrEmptyLog is returned by ReplaceLast when the target log has no entries.
var ErrEmptyLog = errors.New("log is empty")

// Driver is the low-level interface to the session store: an ordered-list
// keyspace with append, ranged read, last-element replace, delete and
// existence checks. The production driver speaks Redis lists; tests use an
// in-memory fake.
type Driver interface {
	// Append pushes a value onto the tail of the list at key.
	Append(ctx context.Context, key string, value string) error
	// ReadRange returns list elements between start and end inclusive.
	// Negative indexes count from the tail, -1 being the last element.
	ReadRange(ctx context.Context, key string, start, end int64) ([]string, error)
	// ReplaceLast overwrites the last element of the list at key. The
	// replacement is atomic with respect to concurrent appends on the same
	// key. Returns ErrEmptyLog when the list does not exist or is empty.
	ReplaceLast(ctx context.Context, key string, value string) error
	// Delete removes the list at key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the list at key exists.
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
