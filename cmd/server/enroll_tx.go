package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "clubgate/pkg/domain-errors"
	txcontext "clubgate/pkg/platform/tx"
)

const defaultEnrollTxTimeout = 5 * time.Second

// enrollTx runs member enrollment in one Postgres transaction so the member
// row, its number and its credential commit together.
type enrollTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newEnrollTx(db *sql.DB) *enrollTx {
	return &enrollTx{db: db, timeout: defaultEnrollTxTimeout}
}

func (t *enrollTx) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return txcontext.Run(ctx, t.db, fn)
}
