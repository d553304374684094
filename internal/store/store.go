// Package store provides the key-value persistence the ticket repository is
// built on.  Values are opaque blobs written and read whole; there is no
// compare-and-swap, so callers serialise their own read-modify-write cycles.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Store reads and writes whole values by key.
type Store interface {
	// Get returns the value under key.  ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set replaces the value under key.
	Set(ctx context.Context, key string, value []byte) error
}

// Key joins namespace parts with ":" the way every other key in the
// service is built.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("store %s %q: %w", op, key, err)
}
