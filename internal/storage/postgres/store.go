package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/characterforge/compendium/internal/metrics"
	"github.com/characterforge/compendium/internal/storage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const backend = "postgres"

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements storage.Repository on PostgreSQL. Kinds map to tables of
// the same name; see the migrations for the schema.
type Store struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ storage.Repository = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	return &Store{pool: pool}, nil
}

// Open connects a pool to databaseURL and pings it.
func Open(ctx context.Context, databaseURL string, maxConns int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.tx == nil {
		s.pool.Close()
	}
}

// ObservePool exports the pool statistics as gauges.
func (s *Store) ObservePool() {
	stat := s.pool.Stat()
	metrics.ObservePool(metrics.PoolStats{
		Open:    int(stat.TotalConns()),
		MaxOpen: int(stat.MaxConns()),
	})
}

func (s *Store) queryer() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.pool
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &Store{pool: s.pool, tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback after error %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
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

	row := make(map[string]any, len(fields)+len(key.Columns))
	for k, v := range fields {
		row[k] = v
	}
	for i, col := range key.Columns {
		row[col] = key.Values[i]
	}
	cols, err := storage.Columns(row)
	if err != nil {
		return 0, err
	}

	isKey := make(map[string]bool, len(key.Columns))
	conflict := make([]string, len(key.Columns))
	for i, col := range key.Columns {
		isKey[col] = true
		conflict[i] = ident(col)
	}

	names := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	updates := []string{"updated_at = now()"}
	for i, col := range cols {
		names[i] = ident(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if args[i], err = storage.ColumnValue(row[col]); err != nil {
			return 0, err
		}
		if !isKey[col] {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", names[i], names[i]))
		}
	}

	// xmax is zero only for a freshly inserted row version.
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0)",
		ident(kind), strings.Join(names, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflict, ", "), strings.Join(updates, ", "),
	)

	var inserted bool
	if err := s.queryer().QueryRow(ctx, query, args...).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("upsert %s %s: %w", kind, key, err)
	}
	if inserted {
		return storage.Created, nil
	}
	return storage.Updated, nil
}

func (s *Store) DeleteAll(ctx context.Context, kind string) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "delete_all", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return 0, err
	}
	tag, err := s.queryer().Exec(ctx, "DELETE FROM "+ident(kind))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", kind, err)
	}
	return tag.RowsAffected(), nil
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
	where := make([]string, len(key.Columns))
	for i, col := range key.Columns {
		where[i] = fmt.Sprintf("t.%s = $%d", ident(col), i+1)
	}
	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t WHERE %s", ident(kind), strings.Join(where, " AND "))
	return s.findOne(ctx, query, key.Values...)
}

func (s *Store) FindByName(ctx context.Context, kind string, name string) (e storage.Entity, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "find_by_name", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return storage.Entity{}, err
	}
	query := fmt.Sprintf("SELECT to_jsonb(t) FROM %s t WHERE lower(t.name) = lower($1) ORDER BY t.created_at, t.id LIMIT 1", ident(kind))
	return s.findOne(ctx, query, name)
}

func (s *Store) findOne(ctx context.Context, query string, args ...any) (storage.Entity, error) {
	var doc []byte
	err := s.queryer().QueryRow(ctx, query, args...).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Entity{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Entity{}, err
	}
	return toEntity(doc)
}

func (s *Store) List(ctx context.Context, kind string) (out []storage.Entity, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "list", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return nil, err
	}
	rows, err := s.queryer().Query(ctx, fmt.Sprintf("SELECT to_jsonb(t) FROM %s t ORDER BY t.created_at, t.id", ident(kind)))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		e, err := toEntity(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, kind string) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "count", start, err) }()

	if err := storage.ValidIdentifier(kind); err != nil {
		return 0, err
	}
	err = s.queryer().QueryRow(ctx, "SELECT count(*) FROM "+ident(kind)).Scan(&n)
	return n, err
}

func (s *Store) Link(ctx context.Context, rel storage.Relation, sourceID, targetID string) (changed bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "link", start, err) }()

	if err := s.endpoints(ctx, rel, sourceID, targetID); err != nil {
		return false, err
	}

	var tag pgconn.CommandTag
	switch rel.Cardinality {
	case storage.ForeignKey:
		col := ident(rel.Column)
		tag, err = s.queryer().Exec(ctx,
			fmt.Sprintf("UPDATE %s SET %s = $2 WHERE id = $1 AND %s IS DISTINCT FROM $2", ident(rel.Source), col, col),
			sourceID, targetID)
	default:
		tag, err = s.queryer().Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
				ident(rel.JoinTable), ident(rel.SourceColumn), ident(rel.TargetColumn)),
			sourceID, targetID)
	}
	if err != nil {
		return false, fmt.Errorf("link %s: %w", rel.Name, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Linked(ctx context.Context, rel storage.Relation, sourceID, targetID string) (linked bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "linked", start, err) }()

	if err := s.endpoints(ctx, rel, sourceID, targetID); err != nil {
		return false, err
	}

	var query string
	switch rel.Cardinality {
	case storage.ForeignKey:
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND %s = $2)", ident(rel.Source), ident(rel.Column))
	default:
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1 AND %s = $2)",
			ident(rel.JoinTable), ident(rel.SourceColumn), ident(rel.TargetColumn))
	}
	err = s.queryer().QueryRow(ctx, query, sourceID, targetID).Scan(&linked)
	return linked, err
}

func (s *Store) CountLinks(ctx context.Context, rel storage.Relation) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "count_links", start, err) }()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	query := "SELECT count(*) FROM " + ident(rel.JoinTable)
	if rel.Cardinality == storage.ForeignKey {
		query = fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL", ident(rel.Source), ident(rel.Column))
	}
	err = s.queryer().QueryRow(ctx, query).Scan(&n)
	return n, err
}

func (s *Store) ClearLinks(ctx context.Context, rel storage.Relation) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery(backend, "clear_links", start, err) }()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	query := "DELETE FROM " + ident(rel.JoinTable)
	if rel.Cardinality == storage.ForeignKey {
		col := ident(rel.Column)
		query = fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IS NOT NULL", ident(rel.Source), col, col)
	}
	tag, err := s.queryer().Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("clear links %s: %w", rel.Name, err)
	}
	return tag.RowsAffected(), nil
}

// endpoints checks the relation and that both ids exist.
func (s *Store) endpoints(ctx context.Context, rel storage.Relation, sourceID, targetID string) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	for _, end := range []struct{ table, id string }{{rel.Source, sourceID}, {rel.Target, targetID}} {
		if _, err := uuid.Parse(end.id); err != nil {
			return fmt.Errorf("%s %s: %w", end.table, end.id, storage.ErrNotFound)
		}
		var exists bool
		err := s.queryer().QueryRow(ctx,
			fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", ident(end.table)), end.id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %s: %w", end.table, end.id, storage.ErrNotFound)
		}
	}
	return nil
}

// toEntity splits a row document into the id and the remaining columns.
// Bookkeeping timestamps are dropped.
func toEntity(doc []byte) (storage.Entity, error) {
	v, err := storage.DecodeJSON(doc)
	if err != nil {
		return storage.Entity{}, fmt.Errorf("decode row: %w", err)
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return storage.Entity{}, fmt.Errorf("decode row: unexpected %T", v)
	}
	id, _ := fields["id"].(string)
	delete(fields, "id")
	delete(fields, "created_at")
	delete(fields, "updated_at")
	return storage.Entity{ID: id, Fields: fields}, nil
}
