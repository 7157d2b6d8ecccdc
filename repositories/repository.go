// Package repositories is the sole path between the core and the durable
// store. Every transaction is timed into the query_duration_ms histogram,
// success or failure, and bounded by the store-call deadline carried in the
// caller's context.
package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/errors"
	"chat-relay/metrics"
)

// Key layout. Message keys embed a 19-digit zero padded timestamp so a plain
// lexicographic scan yields chronological order; the UUID suffix breaks ties
// between messages written in the same nanosecond.
const (
	userLoginPrefix = "user:login:"
	userIDPrefix    = "user:id:"
	messagePrefix   = "msg:"
)

// store wraps a badger handle with the latency histogram and deadline
// handling shared by the user and message repositories.
type store struct {
	db      *badger.DB
	metrics *metrics.Registry
}

func (s store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return s.run(ctx, func() error { return s.db.View(fn) })
}

// update retries optimistic conflicts: the loser of a conflicting commit
// re-runs the transaction and observes the winner's writes. This is what
// turns a racing duplicate registration into ErrDuplicateLogin instead of a
// spurious conflict error.
func (s store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return s.run(ctx, func() error {
		for {
			err := s.db.Update(fn)
			if !stderrors.Is(err, badger.ErrConflict) || ctx.Err() != nil {
				return err
			}
		}
	})
}

// run times the transaction and enforces the caller's deadline. Badger
// transactions are local and fast; an already-expired context is treated the
// same way as an unreachable store, per the gateway contract.
func (s store) run(ctx context.Context, fn func() error) error {
	start := time.Now()
	defer s.metrics.ObserveQuery(start)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
	return mapStoreError(fn())
}

// mapStoreError keeps domain sentinels and key-not-found results intact and
// folds every other badger failure (closed DB, blocked writes, disk errors)
// into ErrStorageUnavailable.
func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, badger.ErrKeyNotFound),
		stderrors.Is(err, errors.ErrDuplicateLogin),
		stderrors.Is(err, errors.ErrUserNotFound):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err)
	}
}
