package database_test

import (
	"context"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database"
	"github.com/ovaphlow/pitchfork/service-diary-core/pkg/database/dbtest"
)

type note struct {
	ID        int64      `db:"id"`
	Body      string     `db:"body"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

func (*note) TableName() string { return "notes" }

func (n *note) Key() map[string]any { return map[string]any{"id": n.ID} }

func (n *note) Values() map[string]any {
	return map[string]any{"id": n.ID, "body": n.Body, "created_at": n.CreatedAt, "updated_at": n.UpdatedAt}
}

func (n *note) GetID() int64             { return n.ID }
func (n *note) SetID(id int64)           { n.ID = id }
func (n *note) SetCreatedAt(t time.Time) { n.CreatedAt = t }
func (n *note) SetUpdatedAt(t time.Time) { n.UpdatedAt = &t }

const notesDDL = `CREATE TABLE notes (
  id INTEGER PRIMARY KEY,
  body TEXT NOT NULL UNIQUE,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP
)`

func setup(t *testing.T) (*database.Store, func() int) {
	t.Helper()
	store, _ := dbtest.NewStore(t)
	_, err := store.DB().Exec(notesDDL)
	require.NoError(t, err)
	return store, func() int { return dbtest.Count(t, store.DB(), "notes", "") }
}

func TestRepository_StagingAndPersist(t *testing.T) {
	ctx := context.Background()

	t.Run("Should_leave_no_row_until_persist", func(t *testing.T) {
		store, count := setup(t)
		repo := database.NewRepository[note](store.NewScope())

		n := repo.Create(&note{Body: "first"})
		assert.NotZero(t, n.ID)
		assert.Equal(t, 1, repo.Scope().Pending())
		assert.Equal(t, 0, count())

		affected, err := repo.Persist(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, affected)
		assert.Equal(t, 1, count())
		assert.Equal(t, 0, repo.Scope().Pending())
	})

	t.Run("Should_stamp_created_and_updated_with_store_clock", func(t *testing.T) {
		store, _ := setup(t)
		repo := database.NewRepository[note](store.NewScope())

		n := repo.Create(&note{Body: "stamped"})
		_, err := repo.Persist(ctx)
		require.NoError(t, err)
		assert.True(t, dbtest.Epoch.Equal(n.CreatedAt))
		assert.Nil(t, n.UpdatedAt)

		n.Body = "restamped"
		repo.Update(n)
		_, err = repo.Persist(ctx)
		require.NoError(t, err)
		require.NotNil(t, n.UpdatedAt)

		got, err := repo.Query().Where(sq.Eq{"id": n.ID}).First(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "restamped", got.Body)
		assert.True(t, dbtest.Epoch.Equal(got.CreatedAt))
		require.NotNil(t, got.UpdatedAt)
	})

	t.Run("Should_share_pending_changes_across_repositories_of_one_scope", func(t *testing.T) {
		store, count := setup(t)
		scope := store.NewScope()
		a := database.NewRepository[note](scope)
		b := database.NewRepository[note](scope)

		a.Create(&note{Body: "via a"})
		b.Create(&note{Body: "via b"})
		affected, err := b.Persist(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, affected)
		assert.Equal(t, 2, count())
	})

	t.Run("Should_not_share_pending_changes_across_scopes", func(t *testing.T) {
		store, count := setup(t)
		a := database.NewRepository[note](store.NewScope())
		b := database.NewRepository[note](store.NewScope())

		a.Create(&note{Body: "isolated"})
		affected, err := b.Persist(ctx)
		require.NoError(t, err)
		assert.Zero(t, affected)
		assert.Equal(t, 0, count())
	})

	t.Run("Should_remove_and_ignore_nil", func(t *testing.T) {
		store, count := setup(t)
		repo := database.NewRepository[note](store.NewScope())
		n := repo.Create(&note{Body: "doomed"})
		_, err := repo.Persist(ctx)
		require.NoError(t, err)

		repo.Remove(nil)
		repo.Remove(n)
		assert.Equal(t, 1, repo.Scope().Pending())
		_, err = repo.Persist(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count())
	})

	t.Run("Should_report_stale_update", func(t *testing.T) {
		store, _ := setup(t)
		repo := database.NewRepository[note](store.NewScope())
		repo.Update(&note{ID: 42, Body: "ghost"})
		_, err := repo.Persist(ctx)
		assert.ErrorIs(t, err, database.ErrStale)
	})

	t.Run("Should_roll_back_whole_batch_on_failure", func(t *testing.T) {
		store, count := setup(t)
		repo := database.NewRepository[note](store.NewScope())
		repo.Create(&note{Body: "dup"})
		repo.Create(&note{Body: "dup"})
		_, err := repo.Persist(ctx)
		require.Error(t, err)
		assert.True(t, database.IsUniqueViolation(err))
		assert.Equal(t, 0, count())
		assert.Equal(t, 0, repo.Scope().Pending())
	})

	t.Run("Should_fail_on_cancelled_context", func(t *testing.T) {
		store, count := setup(t)
		repo := database.NewRepository[note](store.NewScope())
		repo.Create(&note{Body: "late"})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.Persist(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, count())
	})
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	store, _ := setup(t)
	repo := database.NewRepository[note](store.NewScope())
	for _, body := range []string{"c", "a", "b"} {
		repo.Create(&note{Body: body})
	}
	_, err := repo.Persist(ctx)
	require.NoError(t, err)

	t.Run("Should_order_and_limit", func(t *testing.T) {
		got, err := repo.Query().OrderBy("body").Limit(2).All(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0].Body)
		assert.Equal(t, "b", got[1].Body)
	})

	t.Run("Should_count_ignoring_limit", func(t *testing.T) {
		n, err := repo.Query().Where(sq.NotEq{"body": "a"}).Limit(1).Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("Should_return_nil_when_nothing_matches", func(t *testing.T) {
		got, err := repo.Query().Where(sq.Eq{"body": "zzz"}).First(ctx)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("Should_expose_checkpoints_inside_and_discard_on_rollback", func(t *testing.T) {
		store, count := setup(t)
		scope := store.NewScope()
		repo := database.NewRepository[note](scope)

		tx, err := scope.Begin(ctx)
		require.NoError(t, err)
		assert.True(t, scope.InTransaction())

		repo.Create(&note{Body: "inside"})
		_, err = repo.Persist(ctx)
		require.NoError(t, err)
		n, err := repo.Query().Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		repo.Create(&note{Body: "staged only"})
		require.NoError(t, tx.Rollback())
		assert.False(t, scope.InTransaction())
		assert.Equal(t, 0, scope.Pending())
		assert.Equal(t, 0, count())
	})

	t.Run("Should_commit_once", func(t *testing.T) {
		store, count := setup(t)
		scope := store.NewScope()
		repo := database.NewRepository[note](scope)

		tx, err := scope.Begin(ctx)
		require.NoError(t, err)
		repo.Create(&note{Body: "kept"})
		_, err = repo.Persist(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		assert.ErrorIs(t, tx.Rollback(), database.ErrTxDone)
		assert.ErrorIs(t, tx.Commit(), database.ErrTxDone)
		assert.Equal(t, 1, count())
	})

	t.Run("Should_reject_nested_begin", func(t *testing.T) {
		store, _ := setup(t)
		scope := store.NewScope()
		tx, err := scope.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback()

		_, err = scope.Begin(ctx)
		assert.ErrorIs(t, err, database.ErrTxActive)
	})
}

func TestMigrate(t *testing.T) {
	t.Run("Should_be_idempotent_and_seed_roles", func(t *testing.T) {
		db := dbtest.Open(t)
		require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
		assert.Equal(t, 3, dbtest.Count(t, db, "roles", ""))
		assert.Equal(t, 1, dbtest.Count(t, db, "roles", "name = ?", "User"))
	})

	t.Run("Should_reject_unknown_driver", func(t *testing.T) {
		db := dbtest.Open(t)
		assert.Error(t, database.Migrate(context.Background(), db, "mysql"))
	})
}
