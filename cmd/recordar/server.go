package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/foschi-ia/recordar/internal/api"
	"github.com/foschi-ia/recordar/internal/config"
	"github.com/foschi-ia/recordar/internal/entitlement"
	"github.com/foschi-ia/recordar/internal/history"
	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/proxy"
	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/scheduler"
	"github.com/foschi-ia/recordar/internal/storage"
	"github.com/foschi-ia/recordar/internal/storage/postgres"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the recordar server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcpStdio, _ := cmd.Flags().GetBool("mcp-stdio")
		return runServer(mcpStdio)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running recordar server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recordar server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp-stdio", false, "also serve MCP tools over stdin/stdout")
}

// backend is the storage surface the server wires into every component.
// Both the SQLite and the Postgres store implement it.
type backend interface {
	reminder.Store
	scheduler.DueTaker
	scheduler.RetryQueue
	api.HistoryStore
	history.Appender
	history.JobStore
	api.Pinger
	Close() error
}

var (
	_ backend = (*storage.Store)(nil)
	_ backend = (*postgres.Store)(nil)
)

func openBackend(ctx context.Context, cfg config.StorageConfig, loc *time.Location, logger *slog.Logger) (backend, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN, loc, logger)
	default:
		return storage.Open(cfg.DataDir, storage.WithLocation(loc), storage.WithLogger(logger))
	}
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "recordar.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func runServer(mcpStdio bool) error {
	fmt.Fprintln(os.Stderr, versionString())

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)

	loc, err := cfg.Reminders.Location()
	if err != nil {
		return err
	}
	interval, err := cfg.Reminders.Interval()
	if err != nil {
		return err
	}

	apiToken, err := config.EnsureAPIToken(config.DefaultSecrets())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openBackend(ctx, cfg.Storage, loc, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	var replier proxy.Replier = proxy.Echo{}
	if cfg.Proxy.OpenRouterAPIKey != "" {
		replier = proxy.NewClient(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.DefaultModel)
		slog.Info("chat replies via OpenRouter", "model", cfg.Proxy.DefaultModel)
	}

	gateway := notify.NewGateway()
	recorder := history.NewRecorder(store, loc)
	svc := reminder.NewService(store, reminder.Config{
		Location:     loc,
		FreeLimit:    cfg.Reminders.FreeLimit,
		Entitlements: entitlement.NewStatic(cfg.Reminders.UnlimitedOwners),
		Logger:       logger,
	})
	sched := scheduler.New(store, gateway, recorder, store, scheduler.Options{
		Interval: interval,
		Location: loc,
		Logger:   logger,
	})
	worker := history.NewWorker(store, store, time.Second).WithLogger(logger)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Reminders: svc,
			Gateway:   gateway,
			History:   store,
			Recorder:  recorder,
			Replier:   replier,
			Health:    store,
			Token:     apiToken,
			Logger:    logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "recordar listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Reminders: svc,
			Gateway:   gateway,
			History:   store,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("recordar is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("could not stop recordar (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to recordar (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode == http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)
	default:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	printStatus("Storage", "%s", cfg.Storage.Driver)
	if cfg.Storage.Driver == "sqlite" {
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
	}
	printStatus("Timezone", "%s", cfg.Reminders.Timezone)
	printStatus("Tick interval", "%s", cfg.Reminders.TickInterval)
	if cfg.Reminders.FreeLimit > 0 {
		printStatus("Free limit", "%d pending reminders", cfg.Reminders.FreeLimit)
	} else {
		printStatus("Free limit", "none")
	}
	if cfg.Proxy.OpenRouterAPIKey != "" {
		printStatus("Chat replies", "OpenRouter (%s)", cfg.Proxy.DefaultModel)
	} else {
		printStatus("Chat replies", "echo")
	}
	return nil
}
