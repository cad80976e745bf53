package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
// Репозитории принимают его параметром, чтобы работать как внутри транзакции, так и вне ее.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Transactor выполняет функцию внутри транзакции БД.
// Ошибка или паника в fn откатывают транзакцию.
//
//go:generate mockery --name Transactor --output ./mocks --outpkg mocks --case=underscore
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
	// DB возвращает querier для чтений вне транзакции.
	DB() DBTX
}
