package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Jojodayolo/testforge/internal/pagestore"
	"github.com/Jojodayolo/testforge/internal/urlcodec"
)

var (
	mergeRewrite bool
	mergeOutput  string
)

var decodeCmd = &cobra.Command{
	Use:   "decode <name>...",
	Short: "Print the URL each artifact name encodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			fmt.Fprintln(cmd.OutOrStdout(), urlcodec.Decode(name))
		}
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Concatenate every scraped page into one file",
	Args:  cobra.NoArgs,
	RunE:  runMerge,
}

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the reusable backend identity",
}

var identityResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the stored persona so the next session creates a new one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeDB, err := newRunner()
		if err != nil {
			return err
		}
		defer closeDB()

		if err := r.Manager().ResetIdentity(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "identity for %s reset\n", r.Manager().Backend().Name())
		return nil
	},
}

func init() {
	mergeCmd.Flags().BoolVar(&mergeRewrite, "rewrite", false, "replace encoded page names with their URLs")
	mergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "", "write to file instead of stdout")
	identityCmd.AddCommand(identityResetCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	pages, err := pagestore.New(cfg.PagesDir())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if mergeOutput != "" {
		f, err := os.Create(mergeOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	bw := bufio.NewWriter(out)
	n, err := pages.Merge(bw, mergeRewrite)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if mergeOutput != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "merged %d pages into %s\n", n, mergeOutput)
	}
	return nil
}
