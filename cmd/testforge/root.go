package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Jojodayolo/testforge/internal/config"
	"github.com/Jojodayolo/testforge/internal/runner"
	"github.com/Jojodayolo/testforge/internal/store"
)

var (
	// cfgFile holds the path to an explicit configuration file.
	cfgFile string

	// cfg is loaded once before any subcommand runs.
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "testforge",
	Short: "Crawl a web app and generate UI tests for it",
	Long: `testforge crawls a web application, pairs every scraped page with the
free-text requirements derived from its screenshot, and asks a language
model backend to write a test for each pair.

Stages:
  crawl     scrape pages reachable from a start URL
  combine   join scraped pages with requirement files
  generate  run a generation session per combined artifact
  run       all three in sequence`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFile(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		setupLogging(cfg.LogLevel)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./testforge.yaml if present)")

	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(combineCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(identityCmd)
}

// setupLogging installs a text handler on stderr at the named level.
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// openStore opens the SQLite database named by DB_PATH.
func openStore() (*store.Store, func(), error) {
	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	s, err := store.New(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return s, func() { db.Close() }, nil
}

// newRunner opens the store and builds a Runner on top of it.
func newRunner(opts ...runner.Option) (*runner.Runner, func(), error) {
	s, closeDB, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	r, err := runner.New(cfg, append([]runner.Option{runner.WithStore(s)}, opts...)...)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return r, closeDB, nil
}
