// Package state contains logic for managing the per-article sync state which the server persists.
package state

import (
	"context"
	"errors"

	"github.com/stacklok/biblio-sync/internal/status"
)

// ErrNotFound is returned when a target has no persisted state
var ErrNotFound = errors.New("sync state not found")

// Store persists the sync records and global state of one sync target.
// Records of different targets live in separate namespaces.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=service.go Store
type Store interface {
	// Target returns the name of the sync target the store belongs to
	Target() string

	// Get returns the record of an article. A record that was never written is
	// returned as unsubmitted; Get never returns nil without an error.
	Get(ctx context.Context, articleID string) (*status.SyncRecord, error)

	// Set merges update into the record of an article. Fields not named in the
	// update keep their value.
	Set(ctx context.Context, articleID string, update status.RecordUpdate) error

	// ResetAll returns every record to unsubmitted, clearing all fields except,
	// when keepExternalID is set, the registry identifier.
	ResetAll(ctx context.Context, keepExternalID bool) error

	// List returns every stored record ordered by article id
	List(ctx context.Context) ([]*status.SyncRecord, error)

	// GetGlobal returns the global state, seeding the modified check time to now
	// on first access so existing articles are not flagged as modified.
	GetGlobal(ctx context.Context) (*status.GlobalState, error)

	// SetGlobal merges update into the global state
	SetGlobal(ctx context.Context, update status.GlobalUpdate) error
}
