package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a database transaction and passes the
// underlying handle as tx. Repositories accept a nil tx and fall back to the pool.
//
// Balance and stock mutations that span several rows (buy, cancel, approve)
// go through WithTx so the read-modify-write happens under row locks.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
