package runtime

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedWorker struct {
	calls atomic.Int64
	run   func(ctx context.Context, call int64) error
}

func (w *scriptedWorker) Run(ctx context.Context) error {
	return w.run(ctx, w.calls.Add(1))
}

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)

	worker := &scriptedWorker{}
	worker.run = func(ctx context.Context, call int64) error {
		panic("boom")
	}

	sup := NewSupervisor(slog.Default(), 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go sup.Add(worker).Run(ctx)

	req.Eventually(func() bool { return worker.calls.Load() >= 2 }, time.Second, 10*time.Millisecond)
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)

	worker := &scriptedWorker{}
	worker.run = func(ctx context.Context, call int64) error {
		return nil
	}

	sup := NewSupervisor(slog.Default(), 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("supervisor should have stopped after the worker returned nil")
	}
	req.Equal(int64(1), worker.calls.Load())
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)

	started := make(chan struct{})
	worker := &scriptedWorker{}
	worker.run = func(ctx context.Context, call int64) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	sup := NewSupervisor(slog.Default(), 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	<-started
	sup.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("supervisor should have stopped after Stop")
	}
}
