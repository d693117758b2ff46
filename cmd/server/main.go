package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

// rootCmd exposes the server and its operational tasks. Flags override the
// file and environment configuration loaded in loadConfig.
var rootCmd = &cobra.Command{
	Use:           "taxlens",
	Short:         "Confidential tax profile service",
	Long:          "Stores encrypted tax profiles, drives oracle decryption and aggregates per-jurisdiction counts.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (overrides TAXLENS_CONFIG)")
	rootCmd.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
