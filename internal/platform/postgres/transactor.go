package postgres

import (
	"context"
	"database/sql"
	"time"

	dErrors "herald/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

// Transactor binds RunInTx to a database and bounds each transaction with a
// timeout unless the caller already set a deadline.
type Transactor struct {
	db      *sql.DB
	timeout time.Duration
}

func NewTransactor(db *sql.DB) *Transactor {
	return &Transactor{db: db, timeout: defaultTxTimeout}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return RunInTx(ctx, t.db, fn)
}
