package component

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record/memory"
)

func newAssetsManagerForTest(t *testing.T) (*AssetsManager, *memory.Store, blob.Store) {
	t.Helper()
	a := NewAssetsManager("assets", "application/octet-stream", "/assets", "admin")
	records := memory.New()
	blobs := blob.NewMemoryStore("")
	_, err := records.EnsureTable(context.Background(), "assets", nil)
	require.NoError(t, err)
	a.SetStores(records, blobs)
	return a, records, blobs
}

func requestAs(method, path string, user record.User, id string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	ctx := httpctx.WithUser(req.Context(), user)
	if id != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("id", id)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

// TestAssetsManagerOwnershipGate is §8 property 10 / scenario S5: a
// non-admin, non-owning caller may not mutate a private asset; an admin
// may.
func TestAssetsManagerOwnershipGate(t *testing.T) {
	a, records, _ := newAssetsManagerForTest(t)
	owner := "u1"

	rec, err := records.Insert(context.Background(), "assets", record.Record{
		Name: "assets", OwnerID: &owner, IsPublic: false, Date: time.Now(),
	})
	require.NoError(t, err)

	u2 := record.User{ID: "u2", Roles: []string{"viewer"}}
	w := httptest.NewRecorder()
	a.handleDelete(w, requestAs(http.MethodDelete, "/assets/"+rec.ID, u2, rec.ID))
	require.Equal(t, http.StatusForbidden, w.Code)

	admin := record.User{ID: "u3", Roles: []string{"admin"}}
	w = httptest.NewRecorder()
	a.handleDelete(w, requestAs(http.MethodDelete, "/assets/"+rec.ID, admin, rec.ID))
	require.Equal(t, http.StatusOK, w.Code)

	_, ok, err := records.Get(context.Background(), "assets", rec.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

// TestAssetsManagerPublicAssetIsReadableByAnyone covers invariant 4's
// read-only carve-out: a public asset may be read by a non-owner, but not
// mutated by them.
func TestAssetsManagerPublicAssetIsReadableByAnyone(t *testing.T) {
	a, records, _ := newAssetsManagerForTest(t)
	owner := "u1"

	rec, err := records.Insert(context.Background(), "assets", record.Record{
		Name: "assets", OwnerID: &owner, IsPublic: true, Date: time.Now(),
	})
	require.NoError(t, err)

	stranger := record.User{ID: "u2", Roles: []string{"viewer"}}
	w := httptest.NewRecorder()
	a.handleGet(w, requestAs(http.MethodGet, "/assets/"+rec.ID, stranger, rec.ID))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	a.handleDelete(w, requestAs(http.MethodDelete, "/assets/"+rec.ID, stranger, rec.ID))
	require.Equal(t, http.StatusForbidden, w.Code)
}

// TestAssetsManagerOwnerCanMutateOwnAsset covers the non-admin owner path of
// invariant 4.
func TestAssetsManagerOwnerCanMutateOwnAsset(t *testing.T) {
	a, records, _ := newAssetsManagerForTest(t)
	owner := "u1"

	rec, err := records.Insert(context.Background(), "assets", record.Record{
		Name: "assets", OwnerID: &owner, IsPublic: false, Date: time.Now(),
	})
	require.NoError(t, err)

	ownerUser := record.User{ID: "u1"}
	w := httptest.NewRecorder()
	a.handleDelete(w, requestAs(http.MethodDelete, "/assets/"+rec.ID, ownerUser, rec.ID))
	require.Equal(t, http.StatusOK, w.Code)
}

// TestAssetsManagerUploadRejectsInvalidSourceURL covers invariant 3.
func TestAssetsManagerUploadRejectsInvalidSourceURL(t *testing.T) {
	a, _, _ := newAssetsManagerForTest(t)
	user := record.User{ID: "u1"}

	req := httptest.NewRequest(http.MethodPost, "/assets?source=not-a-url", nil)
	req = req.WithContext(httpctx.WithUser(req.Context(), user))

	w := httptest.NewRecorder()
	a.handleUpload(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
