// Package memory is an in-memory record.Store, grounded on the teacher's
// pkg/storage/memory.Store: a mutex-guarded map plus a monotonic ID counter,
// safe for concurrent use, intended for tests and the dry-run startup path.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
	"github.com/google/uuid"
)

type table struct {
	columns []record.ColumnSpec
	rows    map[string]record.Record
	order   []string // insertion order, for tie-breaking on equal dates
}

// Store is an in-memory record.Store implementation.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table

	users    map[string]record.User
	usersExt map[string]string // externalID -> userID
	nextID   int64
}

var _ record.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		tables:   make(map[string]*table),
		users:    make(map[string]record.User),
		usersExt: make(map[string]string),
		nextID:   1,
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return strconv.FormatInt(id, 10)
}

func (s *Store) EnsureTable(_ context.Context, tableName string, columns []record.ColumnSpec) (record.Migration, error) {
	if err := record.ValidateTableName(tableName); err != nil {
		return record.Migration{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		s.tables[tableName] = &table{columns: append([]record.ColumnSpec(nil), columns...), rows: make(map[string]record.Record)}
		return record.Migration{TableCreated: true}, nil
	}

	existing := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		existing[c.Name] = true
	}
	var added []string
	for _, c := range columns {
		if !existing[c.Name] {
			t.columns = append(t.columns, c)
			added = append(added, c.Name)
		}
	}
	return record.Migration{ColumnsAdded: added}, nil
}

func (s *Store) Insert(_ context.Context, tableName string, rec record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return record.Record{}, twinerr.New(twinerr.Configuration, "table not initialized").WithContext("table", tableName)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Fields = cloneFields(rec.Fields)
	t.rows[rec.ID] = rec
	t.order = append(t.order, rec.ID)
	return rec, nil
}

func (s *Store) Update(_ context.Context, tableName, id string, fields map[string]any) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return record.Record{}, twinerr.New(twinerr.Configuration, "table not initialized").WithContext("table", tableName)
	}
	rec, ok := t.rows[id]
	if !ok {
		return record.Record{}, twinerr.New(twinerr.NotFound, "record not found").WithContext("id", id)
	}
	rec = applyFields(rec, fields)
	t.rows[id] = rec
	return rec, nil
}

func (s *Store) Delete(_ context.Context, tableName, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	delete(t.rows, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Get(_ context.Context, tableName, id string) (record.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return record.Record{}, false, nil
	}
	rec, ok := t.rows[id]
	return rec, ok, nil
}

func (s *Store) Latest(_ context.Context, tableName string) (record.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	if len(rows) == 0 {
		return record.Record{}, false, nil
	}
	latest := rows[0]
	for _, r := range rows[1:] {
		if r.Date.After(latest.Date) {
			latest = r
		}
	}
	return latest, true, nil
}

func (s *Store) First(_ context.Context, tableName string) (record.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	if len(rows) == 0 {
		return record.Record{}, false, nil
	}
	first := rows[0]
	for _, r := range rows[1:] {
		if r.Date.Before(first.Date) {
			first = r
		}
	}
	return first, true, nil
}

func (s *Store) RecordsAfter(_ context.Context, tableName string, after time.Time, limit int) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if r.Date.After(after) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordsBefore(_ context.Context, tableName string, before time.Time, limit int) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if r.Date.Before(before) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) RecordsInRange(_ context.Context, tableName string, start, end time.Time, limit int, desc bool) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) List(_ context.Context, tableName, ownerID string, limit, offset int) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.orderedLocked(tableName)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.After(rows[j].Date) })

	out := make([]record.Record, 0, len(rows))
	for _, r := range rows {
		if ownerID != "" && (r.OwnerID == nil || *r.OwnerID != ownerID) {
			continue
		}
		out = append(out, r)
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// orderedLocked returns a copy of tableName's rows in insertion order. Caller
// must hold s.mu (read or write).
func (s *Store) orderedLocked(tableName string) []record.Record {
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]record.Record, 0, len(t.order))
	for _, id := range t.order {
		if r, ok := t.rows[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) EnsureUser(_ context.Context, externalID string) (record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.usersExt[externalID]; ok {
		return s.users[id], nil
	}
	now := time.Now().UTC()
	u := record.User{ID: s.nextIDLocked(), ExternalID: externalID, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.usersExt[externalID] = u.ID
	return u, nil
}

func (s *Store) ReconcileRoles(_ context.Context, userID string, roles []string) (record.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return record.User{}, twinerr.New(twinerr.NotFound, "user not found").WithContext("user_id", userID)
	}
	u.Roles = append([]string(nil), roles...)
	u.UpdatedAt = time.Now().UTC()
	s.users[userID] = u
	return u, nil
}

func (s *Store) Close() error { return nil }

func cloneFields(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func applyFields(rec record.Record, fields map[string]any) record.Record {
	for k, v := range fields {
		switch k {
		case "name":
			rec.Name = fmt.Sprint(v)
		case "content_type":
			rec.ContentType = fmt.Sprint(v)
		case "url":
			rec.URL = fmt.Sprint(v)
		case "date":
			if t, ok := v.(time.Time); ok {
				rec.Date = t
			}
		case "description":
			rec.Description = fmt.Sprint(v)
		case "source":
			rec.Source = fmt.Sprint(v)
		case "filename":
			rec.Filename = fmt.Sprint(v)
		case "is_public":
			if b, ok := v.(bool); ok {
				rec.IsPublic = b
			}
		case "tileset_url":
			rec.TilesetURL = fmt.Sprint(v)
		case "upload_status":
			rec.UploadStatus = record.UploadStatus(fmt.Sprint(v))
		case "upload_error":
			rec.UploadError = fmt.Sprint(v)
		case "upload_job_id":
			rec.UploadJobID = fmt.Sprint(v)
		default:
			if rec.Fields == nil {
				rec.Fields = make(map[string]any)
			}
			rec.Fields[k] = v
		}
	}
	return rec
}
