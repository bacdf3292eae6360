package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rendis/nodeflow/internal/api"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/style"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := a.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		a.close(context.Background())
		os.Exit(1)
	}

	swapper := newHandlerSwapper(a.apiHandler())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           swapper,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	writePID()
	defer os.Remove(pidPath())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.reload(swapper)
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("nodeflow listening", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			a.logger.Error("server failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("forced shutdown", slog.String("error", err.Error()))
	}
	a.close(shutdownCtx)
}

func (a *app) apiHandler() http.Handler {
	deps := api.Deps{
		Scenes: a.scenes,
		Style:  a.style,
		BinDir: binDir(),
		Logger: a.logger,
	}
	if a.autosave != nil {
		deps.Autosave = a.autosave
	}
	return api.NewServer(deps).Handler()
}

// reload re-reads the configuration. Log level and style apply in place;
// everything else is reported as needing a restart.
func (a *app) reload(swapper *handlerSwapper) {
	next := loadConfig()
	diff := diffConfigs(a.cfg, next)

	if diff.LogLevelChanged {
		a.level.Set(logging.ParseLevel(next.LogLevel))
		a.cfg.LogLevel = next.LogLevel
		a.logger.Info("log level changed", slog.String("level", next.LogLevel))
	}
	if diff.StyleChanged {
		st, err := style.Load(next.StyleFile)
		if err != nil {
			a.logger.Warn("style reload failed", slog.String("error", err.Error()))
		} else {
			a.style = st
			a.cfg.StyleFile = next.StyleFile
			swapper.Swap(a.apiHandler())
			a.logger.Info("style reloaded", slog.String("file", next.StyleFile))
		}
	}
	for _, field := range diff.RestartNeeded {
		a.logger.Warn("config change requires restart", slog.String("field", field))
	}
}

func writePID() {
	if err := os.MkdirAll(nodeflowDir(), 0o700); err != nil {
		return
	}
	_ = os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
