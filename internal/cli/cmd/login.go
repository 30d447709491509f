package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cinestream/server/internal/cli/api"
	"github.com/cinestream/server/internal/cli/config"
	"github.com/spf13/cobra"
)

var flagToken string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with your CineStream server",
	Long: `Authenticate with an API token created in the web app
(Settings > API tokens) or through POST /api/auth/tokens.

  cinestream login --token cst_abc123...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token := strings.TrimSpace(flagToken)
		if token == "" {
			return fmt.Errorf("--token is required")
		}
		return loginWithToken(token)
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagToken, "token", "", "API token (cst_...)")
	rootCmd.AddCommand(loginCmd)
}

func loginWithToken(token string) error {
	client := api.NewClient(cfg.ServerURL, token)
	var resp api.Response[api.Me]
	if err := client.Get("/auth/me", nil, &resp); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return fmt.Errorf("invalid token: %s", apiErr.Message)
		}
		return fmt.Errorf("validating token: %w", err)
	}

	cfg.Token = token
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("Logged in as %s (%s)\n", resp.Data.User.Email, resp.Data.User.Role)
	return nil
}
