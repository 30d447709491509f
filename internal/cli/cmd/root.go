package cmd

import (
	"fmt"
	"os"

	"github.com/cinestream/server/internal/cli/api"
	"github.com/cinestream/server/internal/cli/config"
	"github.com/spf13/cobra"
)

var (
	flagJSON      bool
	flagServerURL string

	cfg       *config.Config
	apiClient *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "cinestream",
	Short: "CineStream CLI: manage the movie catalog from the terminal",
	Long: `CineStream CLI talks to a CineStream server to browse the catalog
and push movie files to Google Drive through the resumable upload API.

Get started:
  cinestream login --token cst_...   Authenticate with an API token
  cinestream movies ls               List movies
  cinestream upload movie.mp4        Upload a video in chunks`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagServerURL != "" {
			cfg.ServerURL = flagServerURL
		}
		apiClient = api.NewClient(cfg.ServerURL, cfg.Token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: from config or http://localhost:8080)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func requireAuth() error {
	if cfg == nil || !cfg.HasToken() {
		return fmt.Errorf("not authenticated, run \"cinestream login --token <token>\" first")
	}
	return nil
}
