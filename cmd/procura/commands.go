package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/procura/internal/actions"
	"github.com/rendis/procura/internal/rules"
	"github.com/rendis/procura/internal/validation"
)

func runMigrate(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	fmt.Printf("Database migrated at %s\n", cfg.DBPath)
	return nil
}

func runRules(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: procura rules load|check <file>")
	}
	sub, path := args[0], args[1]
	switch sub {
	case "check":
		return checkRules(path)
	case "load":
		return loadRules(path)
	default:
		return fmt.Errorf("unknown rules command %q", sub)
	}
}

// checkRules validates a rules file against the built-in handlers without
// touching the database.
func checkRules(path string) error {
	list, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	reg := actions.NewRegistry()
	if err := actions.RegisterBuiltins(reg, actions.Deps{}); err != nil {
		return err
	}
	v, err := validation.New(reg)
	if err != nil {
		return err
	}

	failed := false
	for i, r := range list {
		res := v.Validate(r)
		for _, issue := range res.Warnings {
			fmt.Printf("rules[%d] %s: warning: %s\n", i, r.ID, issue)
		}
		for _, issue := range res.Errors {
			fmt.Printf("rules[%d] %s: error: %s\n", i, r.ID, issue)
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("%s is invalid", path)
	}
	fmt.Printf("%d rules OK\n", len(list))
	return nil
}

func loadRules(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := rules.LoadFile(path)
	if err != nil {
		return err
	}
	report, err := rules.Install(ctx, a.store, a.validator, list)
	if err != nil {
		return err
	}
	for _, w := range report.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("Loaded %d rules from %s\n", len(report.Loaded), path)
	return nil
}

// runInit writes settings.json from flags.
func runInit(args []string) error {
	def := defaultConfig()
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", def.ListenAddr, "TCP listen address")
	dbPath := fs.String("db-path", def.DBPath, "database path")
	logLevel := fs.String("log-level", def.LogLevel, "log level: debug, info, warn, error")
	logFormat := fs.String("log-format", def.LogFormat, "log format: json or text")
	poolSize := fs.Int("scheduler-pool-size", def.SchedulerPoolSize, "deferred execution worker pool size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := procuraDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	cfg := def
	cfg.ListenAddr = *listenAddr
	cfg.DBPath = *dbPath
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat
	cfg.SchedulerPoolSize = *poolSize
	if !filepath.IsAbs(cfg.DBPath) && !strings.Contains(cfg.DBPath, ":") {
		if abs, err := filepath.Abs(cfg.DBPath); err == nil {
			cfg.DBPath = abs
		}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	path := settingsPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}
