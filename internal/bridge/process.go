// Package bridge runs the kernel bridge process and keeps the dispatcher's
// kernel provider pointed at its current stream.
package bridge

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/widgetsync/internal/config"
	"github.com/mattjoyce/widgetsync/internal/kernel"
)

const terminationGracePeriod = 5 * time.Second

// Process is one running bridge.
type Process struct {
	Stream *kernel.Stream

	wait     func() error
	stop     func()
	stopOnce sync.Once
}

// Wait blocks until the bridge has exited.
func (p *Process) Wait() error {
	return p.wait()
}

// Stop asks the bridge to exit. Only the first call has an effect.
func (p *Process) Stop() {
	p.stopOnce.Do(p.stop)
}

// Spawner starts a bridge announcing opts.
type Spawner func(ctx context.Context, opts kernel.Options) (*Process, error)

// ExecSpawner starts cfg.Command with the kernel stream on its stdin and
// stdout. Stderr lines are logged.
func ExecSpawner(cfg config.KernelConfig, logger *slog.Logger) Spawner {
	return func(ctx context.Context, opts kernel.Options) (*Process, error) {
		// Termination is managed by Stop, not by a context.
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Dir = cfg.Dir
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("create stdin pipe: %w", err)
		}
		// Copying through io.Pipe makes Wait return only once the stream has
		// read everything the bridge wrote.
		stdoutR, stdoutW := io.Pipe()
		stderrR, stderrW := io.Pipe()
		cmd.Stdout = stdoutW
		cmd.Stderr = stderrW

		if err := cmd.Start(); err != nil {
			_ = stdin.Close()
			return nil, fmt.Errorf("start bridge: %w", err)
		}
		logger.Info("bridge started", "command", cfg.Command, "pid", cmd.Process.Pid)

		go forwardStderr(stderrR, logger)

		exited := make(chan struct{})
		var waitErr error
		go func() {
			waitErr = cmd.Wait()
			_ = stdoutW.Close()
			_ = stderrW.Close()
			close(exited)
		}()

		return &Process{
			Stream: kernel.NewStream(stdoutR, stdin, opts),
			wait: func() error {
				<-exited
				return waitErr
			},
			stop: func() {
				_ = stdin.Close()
				_ = stdoutR.Close()
				select {
				case <-exited:
					return
				default:
				}
				if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
					return
				}
				grace := time.NewTimer(terminationGracePeriod)
				defer grace.Stop()
				select {
				case <-exited:
				case <-grace.C:
					logger.Warn("bridge did not exit after SIGTERM, sending SIGKILL")
					_ = cmd.Process.Kill()
				}
			},
		}, nil
	}
}

func forwardStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Info("bridge stderr", "line", scanner.Text())
	}
}
