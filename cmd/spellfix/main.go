// Package main is the entry point for the spellfix language server. It
// speaks the Language Server Protocol over stdin/stdout; the log stream
// goes to stderr or a file so it never corrupts the protocol channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"spellfix/internal/app"
	"spellfix/internal/config"
	"spellfix/internal/jsonrpc"
	"spellfix/internal/server"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to an extra configuration file")
	flag.StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("spellfix %s (%s)\n", version, commit)
		return 0
	}

	// The editor launches the server with the workspace root as its
	// working directory, which anchors the workspace config layer.
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	configPaths := []string{config.UserConfigPath(), config.WorkspaceConfigPath(root), configPath}

	loadSettings := func() (config.Settings, error) {
		s, err := config.Load(configPaths...)
		if err == nil && logLevel != "" {
			s.Logging.Level = logLevel
		}
		return s, err
	}

	settings, err := loadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, logCleanup, err := buildLogger(settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer logCleanup()
	app.SetLogger(logger)

	conn := jsonrpc.NewConn(jsonrpc.NewStream(stdio{}))
	defer conn.Close()

	srv := server.New(conn, settings, logger, server.WithReload(loadSettings))

	// Re-apply settings when a config layer changes on disk.
	watcher, err := config.NewWatcher(configPaths, func(s config.Settings, err error) {
		if err != nil {
			logger.Warn("config reload failed: %v", err)
			return
		}
		if logLevel == "" {
			logger.SetLevel(app.ParseLogLevel(s.Logging.Level))
		}
		srv.UpdateSettings(s)
	})
	if err != nil {
		logger.Warn("config watcher disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("signal received, shutting down")
		cancel()
		_ = conn.Close()
	}()

	logger.Info("spellfix %s listening on stdio", version)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped: %v", err)
		return 1
	}
	return 0
}

// buildLogger creates the process logger per the logging settings.
func buildLogger(cfg config.LoggingSettings) (*app.Logger, func(), error) {
	loggerCfg := app.DefaultLoggerConfig()
	loggerCfg.Level = app.ParseLogLevel(cfg.Level)
	loggerCfg.Output = os.Stderr

	cleanup := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		loggerCfg.Output = f
		cleanup = func() { _ = f.Close() }
	}

	return app.NewLogger(loggerCfg), cleanup, nil
}

// stdio adapts the process's standard streams to an io.ReadWriteCloser.
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

var _ io.ReadWriteCloser = stdio{}
