package sqldb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/garyjia/procurement/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Driver:       "sqlite3",
		Path:         filepath.Join(t.TempDir(), "tx.db"),
		MaxOpenConns: 4,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE items (id TEXT PRIMARY KEY)")
	require.NoError(t, err)
	return db
}

func countItems(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
	return n
}

func TestWithTransaction_Commits(t *testing.T) {
	db := openTestDB(t)
	m := NewTxManager(db, zap.NewNop())

	err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
		require.NotNil(t, TxFrom(ctx))
		_, err := ExecutorFrom(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (id) VALUES ('a')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	m := NewTxManager(db, zap.NewNop())
	boom := errors.New("boom")

	err := m.WithTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := ExecutorFrom(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (id) VALUES ('a')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, db))
}

func TestWithTransaction_NestedJoinsOuter(t *testing.T) {
	db := openTestDB(t)
	m := NewTxManager(db, zap.NewNop())

	err := m.WithTransaction(context.Background(), func(outer context.Context) error {
		return m.WithTransaction(outer, func(inner context.Context) error {
			assert.Same(t, TxFrom(outer), TxFrom(inner))
			_, err := ExecutorFrom(inner, db.DB).ExecContext(inner, "INSERT INTO items (id) VALUES ('a')")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, db))
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	m := NewTxManager(db, zap.NewNop())

	assert.Panics(t, func() {
		_ = m.WithTransaction(context.Background(), func(ctx context.Context) error {
			_, _ = ExecutorFrom(ctx, db.DB).ExecContext(ctx, "INSERT INTO items (id) VALUES ('a')")
			panic("boom")
		})
	})
	assert.Equal(t, 0, countItems(t, db))
}

func TestExecutorFrom_WithoutTransaction(t *testing.T) {
	db := openTestDB(t)
	assert.Nil(t, TxFrom(context.Background()))
	assert.Equal(t, Executor(db.DB), ExecutorFrom(context.Background(), db.DB))
}
