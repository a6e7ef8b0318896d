package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/widgetsync/internal/kernel"
)

// ErrBridgeExited is returned by Run once max restarts is exceeded.
var ErrBridgeExited = errors.New("bridge: kernel bridge exited")

// Supervisor keeps one bridge running and publishes its stream through a
// provider. A respawned bridge gets a fresh kernel id, which the dispatcher
// treats as a kernel restart.
type Supervisor struct {
	spawn        Spawner
	provider     *kernel.StaticProvider
	opts         kernel.Options
	restartDelay time.Duration
	maxRestarts  int
	logger       *slog.Logger
}

func NewSupervisor(spawn Spawner, provider *kernel.StaticProvider, opts kernel.Options, restartDelay time.Duration, maxRestarts int, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		spawn:        spawn,
		provider:     provider,
		opts:         opts,
		restartDelay: restartDelay,
		maxRestarts:  maxRestarts,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled or the bridge has exited more than
// maxRestarts times.
func (s *Supervisor) Run(ctx context.Context) error {
	opts := s.opts
	for restarts := 0; ; restarts++ {
		proc, err := s.spawn(ctx, opts)
		if err != nil {
			return fmt.Errorf("spawn bridge: %w", err)
		}
		logger := s.logger.With("kernel_id", proc.Stream.ID())
		s.provider.Set(proc.Stream)

		runErr := s.runOnce(ctx, proc)
		s.provider.Set(nil)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("bridge exited", "stream_error", runErr, "restarts", restarts)
		if restarts >= s.maxRestarts {
			return fmt.Errorf("%w after %d restarts", ErrBridgeExited, restarts)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.restartDelay):
		}
		// A new process is a new kernel.
		opts.ID = ""
	}
}

func (s *Supervisor) runOnce(ctx context.Context, proc *Process) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			proc.Stop()
		case <-done:
		}
	}()

	runErr := proc.Stream.Run(ctx)
	proc.Stop()
	if err := proc.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
