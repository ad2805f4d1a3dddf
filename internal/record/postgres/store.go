package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/record"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/twinerr"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the PostgreSQL record.Store. Fixed record fields live as real
// columns; caller-declared component columns (§4.1 ColumnSpec) are tracked in
// digitaltwin_table_columns for migration reporting and persisted inside the
// row's jsonb "fields" column rather than as physical ALTER TABLE columns --
// additive and type-agnostic without a DDL type-mapping layer (see DESIGN.md).
type Store struct {
	*BaseStore
}

var _ record.Store = (*Store)(nil)

// Open connects to dsn and runs the ambient schema migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, twinerr.Wrap(twinerr.Database, "open postgres connection", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, twinerr.Wrap(twinerr.Database, "ping postgres", err)
	}
	if err := runMigrations(db.DB); err != nil {
		return nil, twinerr.Wrap(twinerr.Database, "bootstrap ambient schema", err)
	}
	return &Store{BaseStore: NewBaseStore(db)}, nil
}

func recordTableDDL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		name text NOT NULL DEFAULT '',
		content_type text NOT NULL DEFAULT '',
		url text NOT NULL DEFAULT '',
		date timestamptz NOT NULL,
		description text NOT NULL DEFAULT '',
		source text NOT NULL DEFAULT '',
		owner_id text,
		filename text NOT NULL DEFAULT '',
		is_public boolean NOT NULL DEFAULT false,
		tileset_url text NOT NULL DEFAULT '',
		upload_status text NOT NULL DEFAULT '',
		upload_error text NOT NULL DEFAULT '',
		upload_job_id text NOT NULL DEFAULT '',
		fields jsonb NOT NULL DEFAULT '{}'::jsonb,
		inserted_at serial
	)`, tableName)
}

func (s *Store) EnsureTable(ctx context.Context, tableName string, columns []record.ColumnSpec) (record.Migration, error) {
	if err := record.ValidateTableName(tableName); err != nil {
		return record.Migration{}, err
	}

	var mig record.Migration
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var exists bool
		if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, tableName).Scan(&exists); err != nil {
			return fmt.Errorf("check table existence: %w", err)
		}
		if !exists {
			if _, err := s.exec(ctx, recordTableDDL(tableName)); err != nil {
				return fmt.Errorf("create table: %w", err)
			}
			mig.TableCreated = true
		}

		for _, c := range columns {
			var known bool
			if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM digitaltwin_table_columns WHERE table_name = $1 AND column_name = $2)`, tableName, c.Name).Scan(&known); err != nil {
				return fmt.Errorf("check column catalog: %w", err)
			}
			if known {
				continue
			}
			if _, err := s.exec(ctx, `INSERT INTO digitaltwin_table_columns (table_name, column_name, column_type, nullable) VALUES ($1, $2, $3, $4)`,
				tableName, c.Name, c.Type, c.Nullable); err != nil {
				return fmt.Errorf("register column: %w", err)
			}
			mig.ColumnsAdded = append(mig.ColumnsAdded, c.Name)
		}
		return nil
	})
	if err != nil {
		return record.Migration{}, twinerr.Wrap(twinerr.Database, "ensure table", err)
	}
	return mig, nil
}

const recordColumns = `id, name, content_type, url, date, description, source, owner_id, filename, is_public, tileset_url, upload_status, upload_error, upload_job_id, fields`

func (s *Store) Insert(ctx context.Context, tableName string, rec record.Record) (record.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return record.Record{}, twinerr.Wrap(twinerr.Validation, "encode fields", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, tableName, recordColumns)
	_, err = s.exec(ctx, query,
		rec.ID, rec.Name, rec.ContentType, rec.URL, rec.Date,
		rec.Description, rec.Source, rec.OwnerID, rec.Filename, rec.IsPublic,
		rec.TilesetURL, string(rec.UploadStatus), rec.UploadError, rec.UploadJobID, fieldsJSON)
	if err != nil {
		return record.Record{}, twinerr.Wrap(twinerr.Database, "insert record", err)
	}
	return rec, nil
}

// Update applies a partial column update in place; it is never delete+insert
// (§5), preserving the row's id and references.
func (s *Store) Update(ctx context.Context, tableName, id string, fields map[string]any) (record.Record, error) {
	if len(fields) == 0 {
		return s.mustGet(ctx, tableName, id)
	}

	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	idx := 1
	extra := map[string]any{}
	for k, v := range fields {
		if isFixedColumn(k) {
			setClauses = append(setClauses, fmt.Sprintf("%s = $%d", k, idx))
			args = append(args, v)
			idx++
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		extraJSON, err := json.Marshal(extra)
		if err != nil {
			return record.Record{}, twinerr.Wrap(twinerr.Validation, "encode field update", err)
		}
		setClauses = append(setClauses, fmt.Sprintf("fields = fields || $%d::jsonb", idx))
		args = append(args, string(extraJSON))
		idx++
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", tableName, strings.Join(setClauses, ", "), idx)
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return record.Record{}, twinerr.Wrap(twinerr.Database, "update record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return record.Record{}, twinerr.Wrap(twinerr.Database, "rows affected", err)
	}
	if n == 0 {
		return record.Record{}, twinerr.New(twinerr.NotFound, "record not found").WithContext("id", id)
	}
	return s.mustGet(ctx, tableName, id)
}

func isFixedColumn(name string) bool {
	switch name {
	case "name", "content_type", "url", "date", "description", "source", "owner_id", "filename", "is_public", "tileset_url", "upload_status", "upload_error", "upload_job_id":
		return true
	}
	return false
}

func (s *Store) mustGet(ctx context.Context, tableName, id string) (record.Record, error) {
	rec, ok, err := s.Get(ctx, tableName, id)
	if err != nil {
		return record.Record{}, err
	}
	if !ok {
		return record.Record{}, twinerr.New(twinerr.NotFound, "record not found").WithContext("id", id)
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, tableName, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", tableName)
	if _, err := s.exec(ctx, query, id); err != nil {
		return twinerr.Wrap(twinerr.Database, "delete record", err)
	}
	return nil
}

func (s *Store) scanRow(row interface{ Scan(dest ...any) error }) (record.Record, error) {
	var rec record.Record
	var ownerID sql.NullString
	var fieldsJSON []byte
	var uploadStatus string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.ContentType, &rec.URL, &rec.Date,
		&rec.Description, &rec.Source, &ownerID, &rec.Filename, &rec.IsPublic,
		&rec.TilesetURL, &uploadStatus, &rec.UploadError, &rec.UploadJobID, &fieldsJSON); err != nil {
		return record.Record{}, err
	}
	if ownerID.Valid {
		v := ownerID.String
		rec.OwnerID = &v
	}
	rec.UploadStatus = record.UploadStatus(uploadStatus)
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &rec.Fields); err != nil {
			return record.Record{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	return rec, nil
}

func (s *Store) Get(ctx context.Context, tableName, id string) (record.Record, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", recordColumns, tableName)
	rec, err := s.scanRow(s.queryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, twinerr.Wrap(twinerr.Database, "get record", err)
	}
	return rec, true, nil
}

func (s *Store) Latest(ctx context.Context, tableName string) (record.Record, bool, error) {
	return s.oneOrdered(ctx, tableName, "date DESC")
}

func (s *Store) First(ctx context.Context, tableName string) (record.Record, bool, error) {
	return s.oneOrdered(ctx, tableName, "date ASC")
}

func (s *Store) oneOrdered(ctx context.Context, tableName, orderBy string) (record.Record, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s, inserted_at %s LIMIT 1", recordColumns, tableName, orderBy, strings.Fields(orderBy)[1])
	rec, err := s.scanRow(s.queryRow(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, false, nil
	}
	if err != nil {
		return record.Record{}, false, twinerr.Wrap(twinerr.Database, "fetch ordered record", err)
	}
	return rec, true, nil
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]record.Record, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, twinerr.Wrap(twinerr.Database, "query records", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := s.scanRow(rows)
		if err != nil {
			return nil, twinerr.Wrap(twinerr.Database, "scan record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) RecordsAfter(ctx context.Context, tableName string, after time.Time, limit int) ([]record.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE date > $1 ORDER BY date ASC, inserted_at ASC", recordColumns, tableName)
	query = withLimit(query, limit)
	return s.queryRows(ctx, query, after)
}

func (s *Store) RecordsBefore(ctx context.Context, tableName string, before time.Time, limit int) ([]record.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE date < $1 ORDER BY date DESC, inserted_at DESC", recordColumns, tableName)
	query = withLimit(query, limit)
	return s.queryRows(ctx, query, before)
}

func (s *Store) RecordsInRange(ctx context.Context, tableName string, start, end time.Time, limit int, desc bool) ([]record.Record, error) {
	order := "ASC"
	if desc {
		order = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE date >= $1 AND date < $2 ORDER BY date %s, inserted_at %s", recordColumns, tableName, order, order)
	query = withLimit(query, limit)
	return s.queryRows(ctx, query, start, end)
}

func (s *Store) List(ctx context.Context, tableName, ownerID string, limit, offset int) ([]record.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s", recordColumns, tableName)
	var args []any
	if ownerID != "" {
		query += " WHERE owner_id = $1"
		args = append(args, ownerID)
	}
	query += " ORDER BY date DESC, inserted_at DESC"
	query = withLimit(query, limit)
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s.queryRows(ctx, query, args...)
}

func withLimit(query string, limit int) string {
	if limit > 0 {
		return query + fmt.Sprintf(" LIMIT %d", limit)
	}
	return query
}

func (s *Store) EnsureUser(ctx context.Context, externalID string) (record.User, error) {
	var u record.User
	err := s.WithTx(ctx, func(ctx context.Context) error {
		row := s.queryRow(ctx, `SELECT id, external_id, created_at, updated_at FROM digitaltwin_users WHERE external_id = $1`, externalID)
		if err := row.Scan(&u.ID, &u.ExternalID, &u.CreatedAt, &u.UpdatedAt); err == nil {
			return nil
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := time.Now().UTC()
		u = record.User{ID: uuid.NewString(), ExternalID: externalID, CreatedAt: now, UpdatedAt: now}
		_, err := s.exec(ctx, `INSERT INTO digitaltwin_users (id, external_id, created_at, updated_at) VALUES ($1,$2,$3,$4)`,
			u.ID, u.ExternalID, u.CreatedAt, u.UpdatedAt)
		return err
	})
	if err != nil {
		return record.User{}, twinerr.Wrap(twinerr.Database, "ensure user", err)
	}
	return u, nil
}

// ReconcileRoles performs the §4.4 single-transaction reconciliation: insert
// absent roles, clear the user's current links, insert one link per current
// role, bump updated_at.
func (s *Store) ReconcileRoles(ctx context.Context, userID string, roles []string) (record.User, error) {
	var u record.User
	err := s.WithTx(ctx, func(ctx context.Context) error {
		for _, role := range roles {
			if _, err := s.exec(ctx, `INSERT INTO digitaltwin_roles (name) VALUES ($1) ON CONFLICT DO NOTHING`, role); err != nil {
				return fmt.Errorf("insert role %s: %w", role, err)
			}
		}
		if _, err := s.exec(ctx, `DELETE FROM digitaltwin_user_roles WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear role links: %w", err)
		}
		for _, role := range roles {
			if _, err := s.exec(ctx, `INSERT INTO digitaltwin_user_roles (user_id, role_name) VALUES ($1, $2)`, userID, role); err != nil {
				return fmt.Errorf("link role %s: %w", role, err)
			}
		}
		now := time.Now().UTC()
		row := s.queryRow(ctx, `UPDATE digitaltwin_users SET updated_at = $1 WHERE id = $2 RETURNING id, external_id, created_at, updated_at`, now, userID)
		if err := row.Scan(&u.ID, &u.ExternalID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return fmt.Errorf("touch user: %w", err)
		}
		u.Roles = append([]string(nil), roles...)
		return nil
	})
	if err != nil {
		return record.User{}, twinerr.Wrap(twinerr.Database, "reconcile roles", err)
	}
	return u, nil
}

func (s *Store) Close() error {
	return s.DB().Close()
}
