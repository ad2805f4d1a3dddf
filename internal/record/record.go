// Package record defines the abstract record store of spec §3.1/§3.2/§6:
// one row per component invocation, referencing a blob by handle, plus the
// ambient user/role triad consulted by the auth layer (§4.4).
package record

import (
	"regexp"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

// tableNamePattern is the anti-injection gate of invariant 6: a component's
// table name must look like an identifier, never arbitrary SQL.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateTableName enforces invariant 6, failing loudly (a Configuration
// error, per §7) before any store is touched.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return twinerr.New(twinerr.Configuration, "invalid table name").WithContext("name", name)
	}
	return nil
}

// Record is one row of a component's table (§3.1). Asset-bearing and
// tileset-bearing components populate the trailing fields; plain
// Collector/Harvester records leave them zero-valued.
type Record struct {
	ID          string
	Name        string
	ContentType string
	URL         string
	Date        time.Time

	// Asset fields (AssetsManager and similar variants).
	Description string
	Source      string
	OwnerID     *string
	Filename    string
	IsPublic    bool

	// Tileset async-upload fields (§3.1, §4.5.2).
	TilesetURL   string
	UploadStatus UploadStatus
	UploadError  string
	UploadJobID  string

	// Fields carries the caller-declared columns of a CustomTableManager
	// row (§4.1) that have no fixed slot above.
	Fields map[string]any
}

// UploadStatus enumerates the tileset upload_status values of §3.1.
type UploadStatus string

const (
	UploadPending    UploadStatus = "pending"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// ColumnSpec describes one caller-declared column for a CustomTableManager
// table, or one additive column added during migration (§4.2 step 2).
type ColumnSpec struct {
	Name     string
	Type     string // engine-neutral: "text", "int", "bool", "timestamp", "jsonb"
	Nullable bool
}

// Migration reports what EnsureTable changed, supporting the dry-run
// diagnostic and testable property S6 ("a subsequent startup reports no
// migration changes").
type Migration struct {
	TableCreated bool
	ColumnsAdded []string
}

// Changed reports whether this migration mutated the schema at all.
func (m Migration) Changed() bool {
	return m.TableCreated || len(m.ColumnsAdded) > 0
}

// User is one row of the ambient users table (§3.1), with roles populated
// from the join table by ReconcileRoles.
type User struct {
	ID         string
	ExternalID string
	Roles      []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasRole reports whether the user carries the named role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
