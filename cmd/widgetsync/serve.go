package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/widgetsync/internal/api"
	"github.com/mattjoyce/widgetsync/internal/auth"
	"github.com/mattjoyce/widgetsync/internal/bridge"
	"github.com/mattjoyce/widgetsync/internal/config"
	"github.com/mattjoyce/widgetsync/internal/dispatch"
	"github.com/mattjoyce/widgetsync/internal/kernel"
	"github.com/mattjoyce/widgetsync/internal/lock"
	"github.com/mattjoyce/widgetsync/internal/log"
	"github.com/mattjoyce/widgetsync/internal/recorder"
	"github.com/mattjoyce/widgetsync/internal/storage"
	"github.com/mattjoyce/widgetsync/internal/tui/watch"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configPathFlag(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("widgetsync starting", "version", version, "config", cfg.SourcePath, "config_hash", cfg.SourceHash)

	pidLock, err := lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.Service.LockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := kernel.NewStaticProvider(nil)
	disp := dispatch.New(dispatch.Config{
		Document:          cfg.Widgets.Document,
		DefaultCommTarget: cfg.Widgets.DefaultCommTarget,
		WidgetMimeType:    cfg.Widgets.MimeType,
		EventBuffer:       cfg.API.EventBuffer,
	}, provider)
	defer disp.Dispose()

	errCh := make(chan error, 4)
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	var journal api.DisplayJournal
	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open display journal", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer db.Close()
		logger.Info("display journal opened", "path", cfg.Journal.Path)

		j := storage.NewJournal(db)
		journal = j
		rec := recorder.New(j, disp.DisplayMessages(), cfg.Widgets.Document,
			cfg.Journal.Retention, cfg.Journal.PruneInterval,
			log.WithDocument(cfg.Widgets.Document).With("component", "recorder"))
		run("recorder", rec.Run)
	}

	bridgeLogger := log.WithComponent("bridge")
	sup := bridge.NewSupervisor(
		bridge.ExecSpawner(cfg.Kernel, bridgeLogger),
		provider,
		kernel.Options{
			ID:       cfg.Kernel.ID,
			Name:     cfg.Kernel.Name,
			Username: cfg.Kernel.Username,
			Protocol: cfg.Kernel.Protocol,
		},
		cfg.Kernel.RestartDelay,
		cfg.Kernel.MaxRestarts,
		bridgeLogger,
	)
	run("bridge", sup.Run)

	apiServer := api.New(api.Config{
		Listen:          cfg.API.Listen,
		Token:           cfg.API.Token,
		Tokens:          scopedTokens(cfg.API.Tokens),
		CORSOrigins:     cfg.API.CORSOrigins,
		Document:        cfg.Widgets.Document,
		ConfigHash:      cfg.SourceHash,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, disp, journal, log.WithComponent("api"))
	run("api", apiServer.Start)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.Info("widgetsync running (press Ctrl+C to stop)", "listen", cfg.API.Listen)

	code := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		code = 1
	}

	cancel()
	if !waitTimeout(&wg, cfg.API.ShutdownTimeout+10*time.Second) {
		logger.Warn("components did not stop in time")
	}
	logger.Info("widgetsync stopped")
	return code
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8765", "Surface API URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*apiURL, "/") + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reach widgetsync: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		return 1
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: %s\n", resp.Status)
		return 1
	}

	var health api.HealthzResponse
	if err := json.Unmarshal(body, &health); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid health response: %v\n", err)
		return 1
	}

	st := health.Dispatcher
	fmt.Printf("status:          %s\n", health.Status)
	fmt.Printf("uptime:          %ds\n", health.UptimeSeconds)
	fmt.Printf("document:        %s\n", st.Document)
	fmt.Printf("kernel:          %s\n", orDash(st.KernelID))
	fmt.Printf("using widgets:   %t\n", st.UsingWidgets)
	fmt.Printf("pending:         %d\n", st.PendingOutbound)
	fmt.Printf("waiting:         %d\n", st.Waiting)
	fmt.Printf("message hooks:   %d\n", st.MessageHooks)
	fmt.Printf("output widgets:  %d\n", st.OutputWidgets)
	fmt.Printf("comm targets:    %s\n", orDash(strings.Join(st.CommTargets, ", ")))
	if health.Status != "ok" {
		return 2
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8765", "Surface API URL")
	token := fs.String("token", os.Getenv("WIDGETSYNC_TOKEN"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := watch.New(ctx, strings.TrimRight(*apiURL, "/"), *token)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func scopedTokens(entries []config.TokenEntry) []auth.TokenConfig {
	out := make([]auth.TokenConfig, 0, len(entries))
	for _, e := range entries {
		out = append(out, auth.TokenConfig{Name: e.Name, Token: e.Token, Scopes: e.Scopes})
	}
	return out
}
