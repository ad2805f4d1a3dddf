// Package user implements the §4.4 identity-reconciliation transaction on
// top of internal/record.Store's user/role operations.
package user

import (
	"context"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/auth"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
)

// Reconciler wraps a record.Store to perform the per-request user/role
// reconciliation of §4.4.
type Reconciler struct {
	store record.Store
}

// New builds a Reconciler over store.
func New(store record.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile ensures a user row exists for identity.ExternalID and that its
// role links exactly match identity.Roles, as a single transaction performed
// by the store (insert absent roles, clear existing links, insert current
// links, bump updated_at).
func (r *Reconciler) Reconcile(ctx context.Context, identity auth.Identity) (record.User, error) {
	u, err := r.store.EnsureUser(ctx, identity.ExternalID)
	if err != nil {
		return record.User{}, err
	}
	return r.store.ReconcileRoles(ctx, u.ID, identity.Roles)
}

// MockUser is the stable identity returned when auth is disabled (§4.4).
func MockUser(anonymousUserID string) record.User {
	if anonymousUserID == "" {
		anonymousUserID = "anonymous"
	}
	return record.User{ID: anonymousUserID, ExternalID: anonymousUserID, Roles: []string{"anonymous"}}
}
