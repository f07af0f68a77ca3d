package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres). Repositories MUST gracefully accept nil (the
// non-transactional path).
type Tx interface{}

// TransactionManager executes fn inside a database transaction, passing the
// underlying handle via tx. Keeping the handle opaque stops transaction types
// leaking into use-case interfaces while still letting repositories run
// SELECT ... FOR UPDATE on the tx-bound connection.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
