package repository

import (
	"context"

	"github.com/garyjia/procurement/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/procurement/pkg/database"
	"go.uber.org/zap"
)

// store holds what every repository needs: the pool, its dialect and a logger
type store struct {
	db     *database.DB
	txm    *sqldb.TxManager
	logger *zap.Logger
}

func newStore(db *database.DB, logger *zap.Logger) store {
	return store{db: db, txm: sqldb.NewTxManager(db, logger), logger: logger}
}

// exec returns the transaction carried by ctx, or the pool
func (s store) exec(ctx context.Context) sqldb.Executor {
	return sqldb.ExecutorFrom(ctx, s.db.DB)
}

// q rebinds ? placeholders for the active dialect
func (s store) q(query string) string {
	return s.db.Rebind(query)
}

// atomic runs fn in the caller's transaction or a new one
func (s store) atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.txm.WithTransaction(ctx, fn)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// affected reports the rows touched by a statement, treating driver errors as zero
func affected(res rowsAffecter) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
