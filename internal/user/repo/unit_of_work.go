package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
)

// UnitOfWork groups the account repositories over one scope so that a
// single transaction and a single persist cover all of them. It belongs
// to one request and must not be reused once its transaction has ended.
type UnitOfWork struct {
	scope     *database.Scope
	Users     UserRepo
	Roles     RoleRepo
	UserRoles UserRoleRepo
}

func NewUnitOfWork(store *database.Store) *UnitOfWork {
	scope := store.NewScope()
	return &UnitOfWork{
		scope:     scope,
		Users:     NewUserRepo(scope),
		Roles:     NewRoleRepo(scope),
		UserRoles: NewUserRoleRepo(scope),
	}
}

func (u *UnitOfWork) Scope() *database.Scope { return u.scope }

func (u *UnitOfWork) BeginTransaction(ctx context.Context) (*database.Transaction, error) {
	return u.scope.Begin(ctx)
}

// PersistAll flushes changes staged through any of the repositories. Inside
// a transaction the writes become visible to later queries of the same
// transaction without ending it.
func (u *UnitOfWork) PersistAll(ctx context.Context) (int64, error) {
	return u.scope.Persist(ctx)
}

// WithinTransaction runs fn inside a transaction. It commits when fn
// returns nil and rolls back on any error, a cancelled context or a panic.
// The error from fn is returned as is.
func (u *UnitOfWork) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := u.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, database.ErrTxDone) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("unit of work: %w", err)
	}
	return nil
}
