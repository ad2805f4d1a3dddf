// Package blob defines the abstract blob store of spec §3.1/§6: opaque
// byte payloads addressed by an opaque handle, created before their owning
// record and deleted after it. Concrete object-store backends (S3,
// filesystem-backed services) are external collaborators per spec §1; this
// package ships only the interface plus two reference implementations
// (in-memory and local filesystem) used by tests and the example host.
package blob

import "context"

// Store is the abstract blob store every component's run/upload path is
// injected with.
type Store interface {
	// Save persists bytes under a handle derived from componentName (and
	// optional extension), returning the handle to store on the record.
	Save(ctx context.Context, componentName string, data []byte, ext string) (string, error)

	// SaveAtPath persists bytes at a caller-chosen path, used by the async
	// upload path (§4.5.2) to lay out extracted tileset files under a
	// shared base path.
	SaveAtPath(ctx context.Context, path string, data []byte) (string, error)

	// Retrieve returns the bytes behind a handle.
	Retrieve(ctx context.Context, handle string) ([]byte, error)

	// Delete removes a single blob. Deleting a handle that does not exist
	// is not an error.
	Delete(ctx context.Context, handle string) error

	// DeleteBatch removes several blobs, continuing past individual
	// failures and returning the first error encountered (if any).
	DeleteBatch(ctx context.Context, handles []string) error

	// DeleteByPrefix removes every blob whose handle starts with prefix,
	// returning the number removed. Used to reclaim partially uploaded
	// tileset files on a failed async upload.
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// PublicURL resolves a handle to a URL a client can fetch directly.
	PublicURL(handle string) string
}
