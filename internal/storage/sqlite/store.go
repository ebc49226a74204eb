// Package sqlite is a single-file storage.Repository for local runs. The
// schema matches the postgres one; surrogate ids are uuid strings minted here
// and list columns hold JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/characterforge/compendium/internal/metrics"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const backend = "sqlite"

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Repository on SQLite through database/sql.
type Store struct {
	db *sql.DB
	tx *sql.Tx
}

var _ storage.Repository = (*Store)(nil)

// Open opens the database file at path, or an in-memory database for
// ":memory:". Foreign keys are enforced and writes wait on a busy timeout.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: an in-memory database lives and dies with it, and
	// sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	var fk bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		db.Close()
		return nil, fmt.Errorf("check foreign keys: %w", err)
	}
	if !fk {
		db.Close()
		return nil, errors.New("foreign key enforcement is off")
	}
	return &Store{db: db}, nil
}

// New wraps an open database. The caller applies the schema.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlite store: db is nil")
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() {
	if s.tx == nil {
		_ = s.db.Close()
	}
}

func (s *Store) ObservePool() {
	stats := s.db.Stats()
	metrics.ObservePool(metrics.PoolStats{
		Open:    stats.OpenConnections,
		MaxOpen: stats.MaxOpenConnections,
	})
}

func (s *Store) queryer() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &Store{db: s.db, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after error %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func quote(name string) string {
	return `"` + name + `"`
}

func (s *Store) Upsert(ctx context.Context, kind string, key storage.Key, fields map[string]any) (outcome storage.Outcome, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "upsert", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return 0, err
	}
	if err := key.Validate(); err != nil {
		return 0, err
	}
	isKey := make(map[string]bool, len(key.Columns))
	for _, col := range key.Columns {
		isKey[col] = true
	}
	cols, err := storage.Columns(fields)
	if err != nil {
		return 0, err
	}

	err = s.WithTx(ctx, func(ctx context.Context, repo storage.Repository) error {
		tx := repo.(*Store)
		id, err := tx.idByKey(ctx, kind, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			outcome = storage.Created
			return tx.insert(ctx, kind, key, cols, fields)
		case err != nil:
			return err
		}

		outcome = storage.Updated
		sets := []string{"updated_at = CURRENT_TIMESTAMP"}
		var args []any
		for _, col := range cols {
			if isKey[col] {
				continue
			}
			v, err := columnValue(fields[col])
			if err != nil {
				return err
			}
			sets = append(sets, quote(col)+" = ?")
			args = append(args, v)
		}
		args = append(args, id)
		_, err = tx.queryer().ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", quote(kind), strings.Join(sets, ", ")), args...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %s %s: %w", kind, key, err)
	}
	return outcome, nil
}

func (s *Store) insert(ctx context.Context, kind string, key storage.Key, cols []string, fields map[string]any) error {
	names := []string{"id"}
	args := []any{uuid.NewString()}
	for i, col := range key.Columns {
		names = append(names, quote(col))
		args = append(args, key.Values[i])
	}
	for _, col := range cols {
		if slices.Contains(key.Columns, col) {
			continue
		}
		v, err := columnValue(fields[col])
		if err != nil {
			return err
		}
		names = append(names, quote(col))
		args = append(args, v)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	_, err := s.queryer().ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(kind), strings.Join(names, ", "), placeholders), args...)
	return err
}

func (s *Store) idByKey(ctx context.Context, kind string, key storage.Key) (string, error) {
	where, args := keyClause(key)
	var id string
	err := s.queryer().QueryRowContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE %s", quote(kind), where), args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	return id, err
}

func keyClause(key storage.Key) (string, []any) {
	where := make([]string, len(key.Columns))
	for i, col := range key.Columns {
		where[i] = quote(col) + " = ?"
	}
	return strings.Join(where, " AND "), key.Values
}

// columnValue stores structured values as JSON text rather than blobs.
func columnValue(v any) (any, error) {
	out, err := storage.ColumnValue(v)
	if err != nil {
		return nil, err
	}
	if raw, ok := out.(json.RawMessage); ok {
		return string(raw), nil
	}
	return out, nil
}

func (s *Store) DeleteAll(ctx context.Context, kind string) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "delete_all", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return 0, err
	}
	res, err := s.queryer().ExecContext(ctx, "DELETE FROM "+quote(kind))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return res.RowsAffected()
}

func (s *Store) FindByNaturalKey(ctx context.Context, kind string, key storage.Key) (e storage.Entity, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "find_by_key", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return storage.Entity{}, err
	}
	if err := key.Validate(); err != nil {
		return storage.Entity{}, err
	}
	where, args := keyClause(key)
	return s.findOne(ctx, fmt.Sprintf("SELECT * FROM %s WHERE %s", quote(kind), where), args...)
}

func (s *Store) FindByName(ctx context.Context, kind string, name string) (e storage.Entity, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "find_by_name", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return storage.Entity{}, err
	}
	return s.findOne(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE lower(name) = lower(?) ORDER BY rowid LIMIT 1", quote(kind)), name)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (storage.Entity, error) {
	entities, err := s.query(ctx, query, args...)
	if err != nil {
		return storage.Entity{}, err
	}
	if len(entities) == 0 {
		return storage.Entity{}, storage.ErrNotFound
	}
	return entities[0], nil
}

func (s *Store) List(ctx context.Context, kind string) (out []storage.Entity, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "list", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return nil, err
	}
	return s.query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY rowid", quote(kind)))
}

func (s *Store) Count(ctx context.Context, kind string) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "count", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return 0, err
	}
	err = s.queryer().QueryRowContext(ctx, "SELECT count(*) FROM "+quote(kind)).Scan(&n)
	return n, err
}

func (s *Store) Link(ctx context.Context, rel storage.Relation, sourceID, targetID string) (changed bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "link", start, err) }()

	if err := s.endpoints(ctx, rel, sourceID, targetID); err != nil {
		return false, err
	}

	var res sql.Result
	switch rel.Cardinality {
	case storage.ForeignKey:
		col := quote(rel.Column)
		res, err = s.queryer().ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET %s = ? WHERE id = ? AND %s IS NOT ?", quote(rel.Source), col, col),
			targetID, sourceID, targetID)
	default:
		res, err = s.queryer().ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING",
				quote(rel.JoinTable), quote(rel.SourceColumn), quote(rel.TargetColumn)),
			sourceID, targetID)
	}
	if err != nil {
		return false, fmt.Errorf("link %s: %w", rel.Name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) Linked(ctx context.Context, rel storage.Relation, sourceID, targetID string) (linked bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "linked", start, err) }()

	if err := s.endpoints(ctx, rel, sourceID, targetID); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = ? AND %s = ?)",
		quote(rel.JoinTable), quote(rel.SourceColumn), quote(rel.TargetColumn))
	if rel.Cardinality == storage.ForeignKey {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ? AND %s = ?)", quote(rel.Source), quote(rel.Column))
	}
	err = s.queryer().QueryRowContext(ctx, query, sourceID, targetID).Scan(&linked)
	return linked, err
}

func (s *Store) CountLinks(ctx context.Context, rel storage.Relation) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "count_links", start, err) }()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	query := "SELECT count(*) FROM " + quote(rel.JoinTable)
	if rel.Cardinality == storage.ForeignKey {
		query = fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL", quote(rel.Source), quote(rel.Column))
	}
	err = s.queryer().QueryRowContext(ctx, query).Scan(&n)
	return n, err
}

func (s *Store) ClearLinks(ctx context.Context, rel storage.Relation) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "clear_links", start, err) }()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	query := "DELETE FROM " + quote(rel.JoinTable)
	if rel.Cardinality == storage.ForeignKey {
		col := quote(rel.Column)
		query = fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IS NOT NULL", quote(rel.Source), col, col)
	}
	res, err := s.queryer().ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("clear links %s: %w", rel.Name, err)
	}
	return res.RowsAffected()
}

func (s *Store) endpoints(ctx context.Context, rel storage.Relation, sourceID, targetID string) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	for _, end := range []struct{ table, id string }{{rel.Source, sourceID}, {rel.Target, targetID}} {
		var exists bool
		err := s.queryer().QueryRowContext(ctx,
			fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = ?)", quote(end.table)), end.id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %s: %w", end.table, end.id, storage.ErrNotFound)
		}
	}
	return nil
}

// query scans whole rows into entities. Columns declared JSON are decoded
// and integers come back as int, matching what the importers wrote.
func (s *Store) query(ctx context.Context, query string, args ...any) ([]storage.Entity, error) {
	rows, err := s.queryer().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	var out []storage.Entity
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		e := storage.Entity{Fields: make(map[string]any, len(types))}
		for i, ct := range types {
			name := ct.Name()
			switch name {
			case "created_at", "updated_at":
				continue
			case "id":
				e.ID = asString(values[i])
				continue
			}
			v, err := fromColumn(strings.ToUpper(ct.DatabaseTypeName()), values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			e.Fields[name] = v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func fromColumn(declared string, v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case int64:
		if declared == "BOOLEAN" {
			return t != 0, nil
		}
		return int(t), nil
	case []byte, string:
		if declared == "JSON" {
			return storage.DecodeJSON([]byte(asString(t)))
		}
		return asString(t), nil
	default:
		return v, nil
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
