package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jojodayolo/testforge/internal/report"
	"github.com/Jojodayolo/testforge/internal/runner"
)

var overwrite bool

var crawlCmd = &cobra.Command{
	Use:   "crawl <start-url>",
	Short: "Scrape every page reachable from a start URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrawl,
}

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Join scraped pages with requirement files",
	Args:  cobra.NoArgs,
	RunE:  runCombine,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a test for every combined artifact",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

var runCmd = &cobra.Command{
	Use:   "run [start-url]",
	Short: "Crawl, combine and generate in one go",
	Long: `Run crawls the start URL, combines the scraped pages with the requirement
files and generates tests. Without a start URL the crawl is skipped and the
pages already on disk are used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAll,
}

func init() {
	generateCmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate tests that already exist")
	runCmd.Flags().BoolVar(&overwrite, "overwrite", false, "regenerate tests that already exist")
}

func runCrawl(cmd *cobra.Command, args []string) error {
	r, closeDB, err := newRunner()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := r.Crawl(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	report.Crawl(os.Stdout, res)
	return nil
}

func runCombine(cmd *cobra.Command, args []string) error {
	r, closeDB, err := newRunner()
	if err != nil {
		return err
	}
	defer closeDB()

	res, err := r.Combine(cmd.Context())
	if err != nil {
		return fmt.Errorf("combine: %w", err)
	}
	report.Combine(os.Stdout, res.Artifacts, res.Misses)
	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	r, closeDB, err := newRunner(runner.WithOverwrite(overwrite))
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := r.GenerateAll(cmd.Context(), nil)
	report.Generate(os.Stdout, sum)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	r, closeDB, err := newRunner(runner.WithOverwrite(overwrite))
	if err != nil {
		return err
	}
	defer closeDB()

	var startURL string
	if len(args) == 1 {
		startURL = args[0]
	}
	sum, err := r.Run(cmd.Context(), startURL, nil)
	if sum != nil {
		report.Crawl(os.Stdout, sum.Crawl)
		if sum.Combine != nil {
			report.Combine(os.Stdout, sum.Combine.Artifacts, sum.Combine.Misses)
		}
		report.Generate(os.Stdout, sum.Generate)
	}
	return err
}
