package component

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/blob"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpctx"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/httpenvelope"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
)

// CustomTableManager is the caller-declared-schema variant of §4.1: it owns
// a record-store table whose columns the host declares, exposes generic
// CRUD endpoints over it, and carries no blob.
type CustomTableManager struct {
	Base

	Columns   []record.ColumnSpec
	AdminRole string

	records record.Store
}

// NewCustomTableManager builds a CustomTableManager over the given column
// schema (§4.1, §4.2 step 2).
func NewCustomTableManager(name, contentType, endpoint string, columns []record.ColumnSpec) *CustomTableManager {
	return &CustomTableManager{
		Base:    Base{Name: name, Variant: VariantCustomTableManager, ContentType: contentType, Endpoint: endpoint},
		Columns: columns,
	}
}

func (c *CustomTableManager) TableColumns() []record.ColumnSpec { return c.Columns }

// SetStores satisfies DependencyConsumer; CustomTableManager carries no
// blob so the blob store is accepted and ignored.
func (c *CustomTableManager) SetStores(records record.Store, _ blob.Store) {
	c.records = records
}

func (c *CustomTableManager) Endpoints() []EndpointSpec {
	return []EndpointSpec{
		{Method: http.MethodPost, Path: "", Handler: c.handleCreate},
		{Method: http.MethodGet, Path: "", Handler: c.handleList},
		{Method: http.MethodGet, Path: "/{id}", Handler: c.handleGet},
		{Method: http.MethodPut, Path: "/{id}", Handler: c.handleUpdate},
		{Method: http.MethodDelete, Path: "/{id}", Handler: c.handleDelete},
	}
}

var _ Component = (*CustomTableManager)(nil)
var _ Servable = (*CustomTableManager)(nil)
var _ DependencyConsumer = (*CustomTableManager)(nil)
var _ TableOwner = (*CustomTableManager)(nil)

func (c *CustomTableManager) caller(r *http.Request) (record.User, error) {
	u, ok := httpctx.UserFromContext(r.Context())
	if !ok {
		return record.User{}, twinerr.New(twinerr.Authentication, "no authenticated caller")
	}
	return u, nil
}

// canMutate applies invariant 4 when the row declares an owner; rows with
// no declared owner are mutable by any authenticated caller.
func (c *CustomTableManager) canMutate(u record.User, rec record.Record) bool {
	if c.AdminRole != "" && u.HasRole(c.AdminRole) {
		return true
	}
	if rec.OwnerID == nil {
		return true
	}
	return *rec.OwnerID == u.ID
}

func (c *CustomTableManager) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Validation, "invalid request body", err))
		return
	}
	rec := record.Record{Name: c.Name, Date: time.Now().UTC(), Fields: map[string]any{}}
	ownerID := caller.ID
	rec.OwnerID = &ownerID
	applyColumnValues(&rec, c.Columns, body)

	saved, err := c.records.Insert(r.Context(), c.Name, rec)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	httpenvelope.WriteJSON(w, http.StatusCreated, saved)
}

func (c *CustomTableManager) handleList(w http.ResponseWriter, r *http.Request) {
	if _, err := c.caller(r); err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	limit, offset := parseLimitOffset(r)
	rows, err := c.records.List(r.Context(), c.Name, "", limit, offset)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, rows)
}

func (c *CustomTableManager) handleGet(w http.ResponseWriter, r *http.Request) {
	if _, err := c.caller(r); err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	rec, ok, err := c.records.Get(r.Context(), c.Name, chi.URLParam(r, "id"))
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "row not found"))
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, rec)
}

func (c *CustomTableManager) handleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok, err := c.records.Get(r.Context(), c.Name, id)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "row not found"))
		return
	}
	if !c.canMutate(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to update this row"))
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpenvelope.Error(w, r, twinerr.Wrap(twinerr.Validation, "invalid request body", err))
		return
	}
	updated, err := c.records.Update(r.Context(), c.Name, id, body)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	httpenvelope.WriteJSON(w, http.StatusOK, updated)
}

func (c *CustomTableManager) handleDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := c.caller(r)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	rec, ok, err := c.records.Get(r.Context(), c.Name, id)
	if err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	if !ok {
		httpenvelope.Error(w, r, twinerr.New(twinerr.NotFound, "row not found"))
		return
	}
	if !c.canMutate(caller, rec) {
		httpenvelope.Error(w, r, twinerr.New(twinerr.Authorization, "not permitted to delete this row"))
		return
	}
	if err := c.records.Delete(r.Context(), c.Name, id); err != nil {
		httpenvelope.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// applyColumnValues copies every key present in body into rec.Fields,
// declared-schema columns first, leaving well-known fixed columns (name,
// owner_id, ...) to the store's own field-splitting logic.
func applyColumnValues(rec *record.Record, columns []record.ColumnSpec, body map[string]any) {
	for _, col := range columns {
		if v, ok := body[col.Name]; ok {
			rec.Fields[col.Name] = v
		}
	}
	for k, v := range body {
		if _, declared := rec.Fields[k]; declared {
			continue
		}
		isColumn := false
		for _, col := range columns {
			if col.Name == k {
				isColumn = true
				break
			}
		}
		if !isColumn {
			rec.Fields[k] = v
		}
	}
}
