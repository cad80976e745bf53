package database

import (
	"context"
	"fmt"

	"novel-vote-server/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgTransactor реализует interfaces.Transactor поверх pgxpool.
type PgTransactor struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ interfaces.Transactor = (*PgTransactor)(nil)

// NewPgTransactor создает помощник транзакций.
func NewPgTransactor(pool *pgxpool.Pool, logger *zap.Logger) *PgTransactor {
	return &PgTransactor{pool: pool, logger: logger.Named("PgTransactor")}
}

// DB возвращает пул для чтений вне транзакции.
func (t *PgTransactor) DB() interfaces.DBTX {
	return t.pool
}

// WithTx выполняет fn в транзакции READ COMMITTED.
func (t *PgTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.DBTX) error) (err error) {
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	// Откат при панике
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Panic recovered inside transaction, rolling back", zap.Any("panic", r))
			_ = tx.Rollback(context.Background())
			panic(r)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.logger.Warn("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}
