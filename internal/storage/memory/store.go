// Package memory is an in-process storage.Repository. Tables are created on
// first use and transactions are an undo log replayed on rollback. It mirrors
// the relational backends closely enough for pipeline tests and for dry-run
// previews without a database.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/characterforge/compendium/internal/storage"
	"github.com/google/uuid"
)

type row struct {
	id     string
	key    string
	fields map[string]any
}

type table struct {
	rows  []*row
	byKey map[string]*row
	byID  map[string]*row
}

func newTable() *table {
	return &table{byKey: map[string]*row{}, byID: map[string]*row{}}
}

type joinTable struct {
	source string
	target string
	pairs  map[[2]string]struct{}
}

type foreignKey struct {
	table  string
	column string
	target string
}

type state struct {
	tables map[string]*table
	joins  map[string]*joinTable
	fks    map[foreignKey]struct{}
}

// Store is safe for concurrent use. A transaction holds the lock until it
// ends.
type Store struct {
	mu   *sync.Mutex
	st   *state
	undo *[]func()
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		mu: &sync.Mutex{},
		st: &state{
			tables: map[string]*table{},
			joins:  map[string]*joinTable{},
			fks:    map[foreignKey]struct{}{},
		},
	}
}

func (s *Store) inTx() bool {
	return s.undo != nil
}

func (s *Store) lock() func() {
	if s.inTx() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) onRollback(fn func()) {
	if s.undo != nil {
		*s.undo = append(*s.undo, fn)
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if s.inTx() {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	tx := &Store{mu: s.mu, st: s.st, undo: &undo}
	if err := fn(ctx, tx); err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) Close() {}

func (s *Store) table(kind string) (*table, error) {
	if err := storage.ValidIdentifier(kind); err != nil {
		return nil, err
	}
	t, ok := s.st.tables[kind]
	if !ok {
		t = newTable()
		s.st.tables[kind] = t
	}
	return t, nil
}

func keyString(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x00")
}

func (s *Store) Upsert(ctx context.Context, kind string, key storage.Key, fields map[string]any) (storage.Outcome, error) {
	unlock := s.lock()
	defer unlock()

	if err := key.Validate(); err != nil {
		return 0, err
	}
	t, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	for col := range fields {
		if err := storage.ValidIdentifier(col); err != nil {
			return 0, err
		}
	}

	k := keyString(key.Values)
	if existing, ok := t.byKey[k]; ok {
		previous := copyFields(existing.fields)
		for col, v := range fields {
			existing.fields[col] = v
		}
		s.onRollback(func() { existing.fields = previous })
		return storage.Updated, nil
	}

	r := &row{id: uuid.NewString(), key: k, fields: copyFields(fields)}
	for i, col := range key.Columns {
		r.fields[col] = key.Values[i]
	}
	t.rows = append(t.rows, r)
	t.byKey[k] = r
	t.byID[r.id] = r
	s.onRollback(func() {
		t.rows = t.rows[:len(t.rows)-1]
		delete(t.byKey, k)
		delete(t.byID, r.id)
	})
	return storage.Created, nil
}

func (s *Store) DeleteAll(ctx context.Context, kind string) (int64, error) {
	unlock := s.lock()
	defer unlock()

	old, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	s.st.tables[kind] = newTable()
	s.onRollback(func() { s.st.tables[kind] = old })

	// Join rows cascade and foreign keys into the kind are nulled, as in the
	// relational schemas.
	for _, jt := range s.st.joins {
		if jt.source != kind && jt.target != kind {
			continue
		}
		previous := jt.pairs
		jt.pairs = map[[2]string]struct{}{}
		s.onRollback(func() { jt.pairs = previous })
	}
	for fk := range s.st.fks {
		if fk.target != kind {
			continue
		}
		t, ok := s.st.tables[fk.table]
		if !ok {
			continue
		}
		for _, r := range t.rows {
			id, _ := r.fields[fk.column].(string)
			if _, deleted := old.byID[id]; !deleted {
				continue
			}
			r.fields[fk.column] = nil
			s.onRollback(func() { r.fields[fk.column] = id })
		}
	}
	return int64(len(old.rows)), nil
}

func (s *Store) FindByNaturalKey(ctx context.Context, kind string, key storage.Key) (storage.Entity, error) {
	unlock := s.lock()
	defer unlock()

	if err := key.Validate(); err != nil {
		return storage.Entity{}, err
	}
	t, err := s.table(kind)
	if err != nil {
		return storage.Entity{}, err
	}
	r, ok := t.byKey[keyString(key.Values)]
	if !ok {
		return storage.Entity{}, storage.ErrNotFound
	}
	return toEntity(r), nil
}

func (s *Store) FindByName(ctx context.Context, kind string, name string) (storage.Entity, error) {
	unlock := s.lock()
	defer unlock()

	t, err := s.table(kind)
	if err != nil {
		return storage.Entity{}, err
	}
	for _, r := range t.rows {
		if n, _ := r.fields["name"].(string); strings.EqualFold(n, name) {
			return toEntity(r), nil
		}
	}
	return storage.Entity{}, storage.ErrNotFound
}

func (s *Store) List(ctx context.Context, kind string) ([]storage.Entity, error) {
	unlock := s.lock()
	defer unlock()

	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Entity, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, toEntity(r))
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, kind string) (int64, error) {
	unlock := s.lock()
	defer unlock()

	t, err := s.table(kind)
	if err != nil {
		return 0, err
	}
	return int64(len(t.rows)), nil
}

func (s *Store) Link(ctx context.Context, rel storage.Relation, sourceID, targetID string) (bool, error) {
	unlock := s.lock()
	defer unlock()

	src, err := s.endpoints(rel, sourceID, targetID)
	if err != nil {
		return false, err
	}

	switch rel.Cardinality {
	case storage.ForeignKey:
		s.st.fks[foreignKey{table: rel.Source, column: rel.Column, target: rel.Target}] = struct{}{}
		if current, _ := src.fields[rel.Column].(string); current == targetID {
			return false, nil
		}
		previous := src.fields[rel.Column]
		src.fields[rel.Column] = targetID
		s.onRollback(func() { src.fields[rel.Column] = previous })
		return true, nil
	default:
		jt := s.join(rel)
		pair := [2]string{sourceID, targetID}
		if _, ok := jt.pairs[pair]; ok {
			return false, nil
		}
		jt.pairs[pair] = struct{}{}
		s.onRollback(func() { delete(jt.pairs, pair) })
		return true, nil
	}
}

func (s *Store) Linked(ctx context.Context, rel storage.Relation, sourceID, targetID string) (bool, error) {
	unlock := s.lock()
	defer unlock()

	src, err := s.endpoints(rel, sourceID, targetID)
	if err != nil {
		return false, err
	}
	if rel.Cardinality == storage.ForeignKey {
		current, _ := src.fields[rel.Column].(string)
		return current == targetID, nil
	}
	_, ok := s.join(rel).pairs[[2]string{sourceID, targetID}]
	return ok, nil
}

func (s *Store) CountLinks(ctx context.Context, rel storage.Relation) (int64, error) {
	unlock := s.lock()
	defer unlock()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	if rel.Cardinality == storage.ManyToMany {
		return int64(len(s.join(rel).pairs)), nil
	}
	t, err := s.table(rel.Source)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range t.rows {
		if id, _ := r.fields[rel.Column].(string); id != "" {
			n++
		}
	}
	return n, nil
}

func (s *Store) ClearLinks(ctx context.Context, rel storage.Relation) (int64, error) {
	unlock := s.lock()
	defer unlock()

	if err := rel.Validate(); err != nil {
		return 0, err
	}
	if rel.Cardinality == storage.ManyToMany {
		jt := s.join(rel)
		previous := jt.pairs
		jt.pairs = map[[2]string]struct{}{}
		s.onRollback(func() { jt.pairs = previous })
		return int64(len(previous)), nil
	}

	t, err := s.table(rel.Source)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range t.rows {
		id, _ := r.fields[rel.Column].(string)
		if id == "" {
			continue
		}
		r.fields[rel.Column] = nil
		s.onRollback(func() { r.fields[rel.Column] = id })
		n++
	}
	return n, nil
}

func (s *Store) endpoints(rel storage.Relation, sourceID, targetID string) (*row, error) {
	if err := rel.Validate(); err != nil {
		return nil, err
	}
	srcTable, err := s.table(rel.Source)
	if err != nil {
		return nil, err
	}
	tgtTable, err := s.table(rel.Target)
	if err != nil {
		return nil, err
	}
	src, ok := srcTable.byID[sourceID]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", rel.Source, sourceID, storage.ErrNotFound)
	}
	if _, ok := tgtTable.byID[targetID]; !ok {
		return nil, fmt.Errorf("%s %s: %w", rel.Target, targetID, storage.ErrNotFound)
	}
	return src, nil
}

func (s *Store) join(rel storage.Relation) *joinTable {
	jt, ok := s.st.joins[rel.JoinTable]
	if !ok {
		jt = &joinTable{source: rel.Source, target: rel.Target, pairs: map[[2]string]struct{}{}}
		s.st.joins[rel.JoinTable] = jt
	}
	return jt
}

func toEntity(r *row) storage.Entity {
	return storage.Entity{ID: r.id, Fields: copyFields(r.fields)}
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
