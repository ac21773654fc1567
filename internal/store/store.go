// Package store is the persistence port for the platform's document state.
// The ledger and the withdrawal risk engine keep their state in memory and
// write a full snapshot through this port after every mutation; on startup
// they load the last snapshot back. Backends only need durable key/blob
// semantics.
package store

import (
	"context"
	"errors"
)

// Snapshot document keys.
const (
	KeyLedger = "ledger"
	KeyRisk   = "risk"
)

// ErrNotFound is returned by Load when no snapshot exists for the key yet
// (first boot, or a fresh backend).
var ErrNotFound = errors.New("store: snapshot not found")

// Store persists JSON snapshot documents.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
}
