package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Repository stages writes for one entity type on a Scope. Nothing reaches
// the database until Persist is called on it, on another repository of the
// same scope, or on the scope itself.
type Repository[T any, PT interface {
	*T
	Entity
}] struct {
	scope *Scope
	table string
}

func NewRepository[T any, PT interface {
	*T
	Entity
}](scope *Scope) *Repository[T, PT] {
	var zero T
	return &Repository[T, PT]{scope: scope, table: PT(&zero).TableName()}
}

func (r *Repository[T, PT]) Scope() *Scope { return r.scope }

func (r *Repository[T, PT]) Table() string { return r.table }

// Query starts a lazy SELECT over the repository's table.
func (r *Repository[T, PT]) Query() Query[T] {
	return Query[T]{scope: r.scope, builder: sq.Select(r.table + ".*").From(r.table)}
}

// Create stages an insert and returns the same entity, with its id assigned.
func (r *Repository[T, PT]) Create(e PT) PT {
	r.scope.stage(changeInsert, e)
	return e
}

// Update stages an in-place modification and returns the same entity.
func (r *Repository[T, PT]) Update(e PT) PT {
	r.scope.stage(changeUpdate, e)
	return e
}

func (r *Repository[T, PT]) Remove(e PT) {
	if e == nil {
		return
	}
	r.scope.stage(changeDelete, e)
}

// Persist flushes everything staged on the underlying scope.
func (r *Repository[T, PT]) Persist(ctx context.Context) (int64, error) {
	return r.scope.Persist(ctx)
}

// Query is an immutable SELECT builder bound to a scope. It does not touch
// the database until First, All or Count is called.
type Query[T any] struct {
	scope   *Scope
	builder sq.SelectBuilder
}

func (q Query[T]) Where(pred any, args ...any) Query[T] {
	q.builder = q.builder.Where(pred, args...)
	return q
}

func (q Query[T]) Join(join string, rest ...any) Query[T] {
	q.builder = q.builder.Join(join, rest...)
	return q
}

func (q Query[T]) OrderBy(orderBys ...string) Query[T] {
	q.builder = q.builder.OrderBy(orderBys...)
	return q
}

func (q Query[T]) Limit(n uint64) Query[T] {
	q.builder = q.builder.Limit(n)
	return q
}

// First returns the first matching row, or nil when nothing matches.
func (q Query[T]) First(ctx context.Context) (*T, error) {
	query, args, err := q.builder.Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out T
	if err := sqlx.GetContext(ctx, q.scope.queryer(), &out, q.scope.store.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (q Query[T]) All(ctx context.Context) ([]T, error) {
	query, args, err := q.builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var out []T
	if err := sqlx.SelectContext(ctx, q.scope.queryer(), &out, q.scope.store.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (q Query[T]) Count(ctx context.Context) (int64, error) {
	query, args, err := q.builder.RemoveColumns().Columns("COUNT(*)").RemoveLimit().ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var n int64
	if err := sqlx.GetContext(ctx, q.scope.queryer(), &n, q.scope.store.db.Rebind(query), args...); err != nil {
		return 0, err
	}
	return n, nil
}
