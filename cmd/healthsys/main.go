// Package main is the entry point for healthsys.
//
// healthsys is an interactive patient record manager. Records live in memory
// while the session runs and are written back to a CSV file when the user
// quits. Configuration is read from CLI flags and an optional healthsys.yaml
// in the data directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/maruel/healthsys/internal/cli"
	"github.com/maruel/healthsys/internal/storage"
	"github.com/maruel/healthsys/internal/utils"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "healthsys: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	dataDir := flag.String("data", "./data", "Data directory")
	configPath := flag.String("config", "", "Configuration file (default: <data>/"+storage.ConfigFileName+")")
	logLevel := flag.String("log-level", "warn", "Log level (debug, info, warn, error)")
	configSchema := flag.Bool("config-schema", false, "Print the configuration JSON Schema and exit")
	noHistory := flag.Bool("no-history", false, "Do not commit saves to git")
	csvFile := flag.String("csv", "", "Patient CSV file, relative to -data (overrides csv_path)")
	formatInput := flag.Bool("format-input", false, "Format digit-only CPF and date input (overrides format_input)")
	saveConfig := flag.Bool("save-config", false, "Write the effective configuration to -config and exit")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *configSchema {
		data, err := storage.ConfigSchema()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
		ll.Set(slog.LevelInfo)
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			val := a.Value.Any()
			skip := false
			switch t := val.(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
	sessionID := utils.NewSessionID()
	slog.SetDefault(logger.With("session", sessionID))

	if *configPath == "" {
		*configPath = filepath.Join(*dataDir, storage.ConfigFileName)
	}
	cfg, err := storage.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	// Flags explicitly set win over the configuration file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["csv"] {
		cfg.CSVPath = *csvFile
	}
	if set["format-input"] {
		cfg.FormatInput = *formatInput
	}
	if *noHistory {
		cfg.History = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *saveConfig {
		if err := cfg.Save(*configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", *configPath)
		return nil
	}

	csvPath := cfg.CSVFile(*dataDir)
	var history *storage.History
	if cfg.History {
		if history, err = storage.OpenHistory(filepath.Dir(csvPath), cfg.AuthorName, cfg.AuthorEmail); err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
	}
	store, err := storage.OpenPatientStore(ctx, csvPath, storage.StoreOptions{
		History: history,
		Journal: cfg.Journal,
		Session: sessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to open patient file: %w", err)
	}

	opts := []cli.Option{
		cli.WithTerminal(cli.NewTerminal(os.Stdout)),
		cli.WithInputFormatting(cfg.FormatInput),
	}
	if history != nil {
		opts = append(opts, cli.WithHistory(history))
	}
	if cfg.Watch {
		w, err := storage.WatchFile(ctx, csvPath, store.Modified)
		if err != nil {
			slog.WarnContext(ctx, "Not watching patient file", "err", err)
		} else {
			defer func() { _ = w.Close() }()
			opts = append(opts, cli.WithChanges(w.Changed()))
		}
	}
	session := cli.NewSession(store, os.Stdin, os.Stdout, opts...)

	// Reading stdin blocks, so the session runs aside and a signal abandons it.
	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()
	select {
	case err = <-sessionErr:
		if errors.Is(err, io.ErrUnexpectedEOF) {
			warnUnsaved(ctx, store)
			return nil
		}
		return err
	case <-ctx.Done():
		warnUnsaved(ctx, store)
		return ctx.Err()
	}
}

func warnUnsaved(ctx context.Context, store *storage.PatientStore) {
	if store.Dirty() {
		slog.WarnContext(ctx, "Exiting without saving, changes discarded", "path", store.Path())
	}
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("healthsys %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}
