package record

import (
	"context"
	"time"
)

// Store is the abstract record store every component is injected with.
// Implementations must be safe under concurrent access (§5): table
// creation is a one-time startup action and migration is additive and
// idempotent.
type Store interface {
	// EnsureTable creates the component's table if absent, or additively
	// migrates it (adding missing columns, never dropping or narrowing)
	// per §4.2 step 2.
	EnsureTable(ctx context.Context, tableName string, columns []ColumnSpec) (Migration, error)

	// Insert adds a new record. The caller must have already persisted the
	// referenced blob (invariant 2).
	Insert(ctx context.Context, tableName string, rec Record) (Record, error)

	// Update applies an in-place field update to an existing record. Must
	// never be implemented as delete+insert (§5): references and the
	// record ID are preserved.
	Update(ctx context.Context, tableName, id string, fields map[string]any) (Record, error)

	// Delete removes a record. Deleting the owning blob is the caller's
	// responsibility (component delete paths, §3.2).
	Delete(ctx context.Context, tableName, id string) error

	// Get retrieves a single record by ID.
	Get(ctx context.Context, tableName, id string) (Record, bool, error)

	// Latest returns the most recently dated record for a component, or
	// ok=false if the table is empty.
	Latest(ctx context.Context, tableName string) (rec Record, ok bool, err error)

	// First returns the earliest-dated record for a component, or
	// ok=false if the table is empty.
	First(ctx context.Context, tableName string) (rec Record, ok bool, err error)

	// RecordsAfter returns up to limit records with date > after, ordered
	// by date ascending then insertion order on ties (§5).
	RecordsAfter(ctx context.Context, tableName string, after time.Time, limit int) ([]Record, error)

	// RecordsBefore returns up to limit records with date < before,
	// ordered by date descending then insertion order on ties, used by
	// the harvester dependency-fetch step (§4.5.1 step 8).
	RecordsBefore(ctx context.Context, tableName string, before time.Time, limit int) ([]Record, error)

	// RecordsInRange returns records with date in [start, end), ordered by
	// date; desc controls direction. limit of 0 means unbounded.
	RecordsInRange(ctx context.Context, tableName string, start, end time.Time, limit int, desc bool) ([]Record, error)

	// List returns up to limit records for a component ordered by date
	// descending, honoring an optional owner filter (ownerID == "" means
	// "no filter"), for AssetsManager/CustomTableManager list endpoints.
	List(ctx context.Context, tableName, ownerID string, limit, offset int) ([]Record, error)

	// EnsureUser lazily creates a user row for externalID if one does not
	// already exist (§4.4), returning the (possibly newly created) user
	// without roles populated.
	EnsureUser(ctx context.Context, externalID string) (User, error)

	// ReconcileRoles performs the single-transaction role reconciliation
	// of §4.4: insert absent roles, clear the user's existing links,
	// insert one link per current role, bump updated_at, and return the
	// user with Roles populated.
	ReconcileRoles(ctx context.Context, userID string, roles []string) (User, error)

	// Close releases the store's underlying resources (§4.2 step 5).
	Close() error
}

// Cursor is a date marker identifying a position in a component's
// insertion-ordered record stream (the glossary's "Cursor").
type Cursor = time.Time
