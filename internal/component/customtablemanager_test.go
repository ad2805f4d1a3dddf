package component

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record/memory"
)

func newCustomTableManagerForTest(t *testing.T) (*CustomTableManager, *memory.Store) {
	t.Helper()
	c := NewCustomTableManager("devices", "application/json", "/devices", []record.ColumnSpec{
		{Name: "serial", Type: "text"},
		{Name: "active", Type: "bool"},
	})
	records := memory.New()
	_, err := records.EnsureTable(context.Background(), "devices", c.Columns)
	require.NoError(t, err)
	c.SetStores(records, nil)
	return c, records
}

func jsonRequestAs(method, path, body string, user record.User, id string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	ctx := httpctx.WithUser(req.Context(), user)
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

// TestCustomTableManagerCreateStampsOwnerAndStoresColumns covers §4.1's
// generic create path: the caller becomes the row's owner and declared
// columns are persisted into Fields.
func TestCustomTableManagerCreateStampsOwnerAndStoresColumns(t *testing.T) {
	c, records := newCustomTableManagerForTest(t)
	u := record.User{ID: "u1"}

	w := httptest.NewRecorder()
	c.handleCreate(w, jsonRequestAs(http.MethodPost, "/devices", `{"serial":"abc123","active":true}`, u, ""))
	require.Equal(t, http.StatusCreated, w.Code)

	rows, err := records.RecordsAfter(context.Background(), "devices", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].OwnerID)
	require.Equal(t, "u1", *rows[0].OwnerID)
	require.Equal(t, "abc123", rows[0].Fields["serial"])
	require.Equal(t, true, rows[0].Fields["active"])
}

// TestCustomTableManagerUpdateRejectsNonOwnerNonAdmin covers invariant 4 for
// the caller-declared-schema variant.
func TestCustomTableManagerUpdateRejectsNonOwnerNonAdmin(t *testing.T) {
	c, records := newCustomTableManagerForTest(t)
	owner := "u1"
	rec, err := records.Insert(context.Background(), "devices", record.Record{
		Name: "devices", OwnerID: &owner, Fields: map[string]any{"serial": "x"},
	})
	require.NoError(t, err)

	stranger := record.User{ID: "u2"}
	w := httptest.NewRecorder()
	c.handleUpdate(w, jsonRequestAs(http.MethodPut, "/devices/"+rec.ID, `{"serial":"y"}`, stranger, rec.ID))
	require.Equal(t, http.StatusForbidden, w.Code)
}

// TestCustomTableManagerDeleteAllowsAdminRegardlessOfOwnership covers the
// admin-bypass half of invariant 4.
func TestCustomTableManagerDeleteAllowsAdminRegardlessOfOwnership(t *testing.T) {
	c, records := newCustomTableManagerForTest(t)
	c.AdminRole = "admin"
	owner := "u1"
	rec, err := records.Insert(context.Background(), "devices", record.Record{
		Name: "devices", OwnerID: &owner, Fields: map[string]any{"serial": "x"},
	})
	require.NoError(t, err)

	admin := record.User{ID: "u9", Roles: []string{"admin"}}
	w := httptest.NewRecorder()
	c.handleDelete(w, jsonRequestAs(http.MethodDelete, "/devices/"+rec.ID, "", admin, rec.ID))
	require.Equal(t, http.StatusOK, w.Code)

	_, ok, err := records.Get(context.Background(), "devices", rec.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCustomTableManagerGetUnknownIDReturns404 covers the row-not-found
// path common to all generic CRUD handlers.
func TestCustomTableManagerGetUnknownIDReturns404(t *testing.T) {
	c, _ := newCustomTableManagerForTest(t)
	u := record.User{ID: "u1"}

	w := httptest.NewRecorder()
	c.handleGet(w, jsonRequestAs(http.MethodGet, "/devices/missing", "", u, "missing"))
	require.Equal(t, http.StatusNotFound, w.Code)
}

// TestCustomTableManagerMutateWithNoDeclaredOwnerIsOpen covers the
// no-owner carve-out: rows inserted without an owner are mutable by any
// authenticated caller.
func TestCustomTableManagerMutateWithNoDeclaredOwnerIsOpen(t *testing.T) {
	c, records := newCustomTableManagerForTest(t)
	rec, err := records.Insert(context.Background(), "devices", record.Record{
		Name: "devices", Fields: map[string]any{"serial": "x"},
	})
	require.NoError(t, err)

	anyone := record.User{ID: "u2"}
	w := httptest.NewRecorder()
	c.handleDelete(w, jsonRequestAs(http.MethodDelete, "/devices/"+rec.ID, "", anyone, rec.ID))
	require.Equal(t, http.StatusOK, w.Code)
}
