package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

var (
	ErrTxDone   = errors.New("database: transaction already committed or rolled back")
	ErrTxActive = errors.New("database: scope already has an open transaction")
	// ErrStale is returned by Persist when a staged update or delete matched no row.
	ErrStale = errors.New("database: staged row no longer exists")
)

// Entity is a row type that can be staged through a Repository.
type Entity interface {
	TableName() string
	// Key returns the identifying columns used by UPDATE and DELETE.
	Key() map[string]any
	// Values returns every persisted column, key columns included.
	Values() map[string]any
}

// Identified entities receive a snowflake id when staged for insert with a zero id.
type Identified interface {
	GetID() int64
	SetID(id int64)
}

// Auditable entities are stamped with the store clock when persisted.
type Auditable interface {
	SetCreatedAt(t time.Time)
	SetUpdatedAt(t time.Time)
}

// Store is the pool-level handle shared by all requests. It is read-only
// after construction; per-request state lives in a Scope.
type Store struct {
	db    *sqlx.DB
	clock clockwork.Clock
	ids   *snowflake.Node
}

func NewStore(db *sqlx.DB, clock clockwork.Clock, ids *snowflake.Node) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, clock: clock, ids: ids}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Clock() clockwork.Clock { return s.clock }

// NewScope opens a fresh store scope. A scope must not be shared between
// concurrent requests.
func (s *Store) NewScope() *Scope { return &Scope{store: s} }

type changeKind int

const (
	changeInsert changeKind = iota
	changeUpdate
	changeDelete
)

type change struct {
	kind   changeKind
	entity Entity
}

// Scope holds the staged changes and the optional open transaction shared
// by every repository built on it.
type Scope struct {
	store   *Store
	tx      *sqlx.Tx
	pending []change
}

// Pending reports how many changes are staged and not yet persisted.
func (s *Scope) Pending() int { return len(s.pending) }

func (s *Scope) InTransaction() bool { return s.tx != nil }

func (s *Scope) queryer() sqlx.QueryerContext {
	if s.tx != nil {
		return s.tx
	}
	return s.store.db
}

func (s *Scope) stage(kind changeKind, e Entity) {
	if kind == changeInsert {
		if ide, ok := e.(Identified); ok && ide.GetID() == 0 && s.store.ids != nil {
			ide.SetID(s.store.ids.Generate().Int64())
		}
	}
	s.pending = append(s.pending, change{kind: kind, entity: e})
}

// Persist flushes every staged change and returns the number of affected
// rows. Inside a transaction the writes join it; otherwise they run in a
// short transaction of their own. Staged changes are consumed even when
// the flush fails.
func (s *Scope) Persist(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(s.pending) == 0 {
		return 0, nil
	}
	changes := s.pending
	s.pending = nil
	now := s.store.clock.Now().UTC()

	if s.tx != nil {
		return s.flush(ctx, s.tx, changes, now)
	}
	tx, err := s.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin persist: %w", err)
	}
	n, err := s.flush(ctx, tx, changes, now)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit persist: %w", err)
	}
	return n, nil
}

func (s *Scope) flush(ctx context.Context, tx *sqlx.Tx, changes []change, now time.Time) (int64, error) {
	var total int64
	for _, c := range changes {
		table := c.entity.TableName()
		var (
			query string
			args  []any
			err   error
		)
		switch c.kind {
		case changeInsert:
			if a, ok := c.entity.(Auditable); ok {
				a.SetCreatedAt(now)
			}
			query, args, err = sq.Insert(table).SetMap(c.entity.Values()).ToSql()
		case changeUpdate:
			if a, ok := c.entity.(Auditable); ok {
				a.SetUpdatedAt(now)
			}
			key := c.entity.Key()
			values := c.entity.Values()
			for col := range key {
				delete(values, col)
			}
			query, args, err = sq.Update(table).SetMap(values).Where(sq.Eq(key)).ToSql()
		case changeDelete:
			query, args, err = sq.Delete(table).Where(sq.Eq(c.entity.Key())).ToSql()
		}
		if err != nil {
			return 0, fmt.Errorf("build %s statement: %w", table, err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return 0, fmt.Errorf("write %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected %s: %w", table, err)
		}
		if n == 0 && c.kind != changeInsert {
			return 0, fmt.Errorf("%w: %s", ErrStale, table)
		}
		total += n
	}
	return total, nil
}

// Transaction is the handle returned by Scope.Begin. Exactly one of Commit
// or Rollback takes effect; later calls return ErrTxDone, so
// `defer tx.Rollback()` is safe after a successful Commit.
type Transaction struct {
	scope *Scope
	tx    *sqlx.Tx
	done  bool
}

// Begin opens a transaction that every repository on this scope joins
// until it is committed or rolled back.
func (s *Scope) Begin(ctx context.Context) (*Transaction, error) {
	if s.tx != nil {
		return nil, ErrTxActive
	}
	tx, err := s.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	s.tx = tx
	return &Transaction{scope: s, tx: tx}, nil
}

func (t *Transaction) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.scope.tx = nil
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the transaction and anything still staged on the scope.
func (t *Transaction) Rollback() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	t.scope.tx = nil
	t.scope.pending = nil
	// database/sql already rolled back if the context was cancelled
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}
