package runtime

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type funcWorker struct {
	run func(ctx context.Context) error
}

func (w *funcWorker) Run(ctx context.Context) error { return w.run(ctx) }

func TestSupervisor_RestartOnPanic(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	var calls atomic.Int32
	worker := &funcWorker{run: func(ctx context.Context) error {
		calls.Add(1)
		panic("boom")
	}}

	sup := NewSupervisor(log)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	go sup.Add(worker).Run(ctx)

	// Waiting for panics and restarts
	time.Sleep(900 * time.Millisecond)

	req.GreaterOrEqual(calls.Load(), int32(2))
}

func TestSupervisor_StopOnSuccess(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	var calls atomic.Int32
	worker := &funcWorker{run: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})

	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
		// A clean return is final: no restart
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after worker success")
	}
	req.Equal(int32(1), calls.Load())
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	started := make(chan struct{})
	worker := &funcWorker{run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}

	sup := NewSupervisor(log)
	done := make(chan struct{})
	go func() {
		sup.Add(worker).Run(context.Background())
		close(done)
	}()

	<-started
	sup.Stop()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		req.Fail("Supervisor should have stopped after cancellation")
	}
}
