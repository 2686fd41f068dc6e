package service

import (
	"context"
	"sync"
	"time"

	dErrors "herald/pkg/domain-errors"
)

// Transactor runs fn inside a transaction carried by the context passed to fn.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const defaultTxTimeout = 5 * time.Second

// LockingTx serializes writes for in-memory stores. It cannot roll back, so
// callers compensate on failure.
type LockingTx struct {
	mu      sync.Mutex
	timeout time.Duration
}

func NewLockingTx() *LockingTx {
	return &LockingTx{timeout: defaultTxTimeout}
}

func (t *LockingTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}
