package cmd

import (
	"github.com/cinestream/server/internal/cli/api"
	"github.com/cinestream/server/internal/cli/output"
	"github.com/spf13/cobra"
)

// Version is the CLI version, injected at build time:
//
//	go build -ldflags "-X github.com/cinestream/server/internal/cli/cmd.Version=1.2.3"
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI and server version",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.Response[api.VersionInfo]
		serverErr := apiClient.Get("/version", nil, &resp)

		var server *api.VersionInfo
		if serverErr == nil {
			server = &resp.Data
		}

		if flagJSON {
			out := struct {
				CLIVersion  string           `json:"cliVersion"`
				Server      *api.VersionInfo `json:"server,omitempty"`
				ServerError string           `json:"serverError,omitempty"`
			}{CLIVersion: Version, Server: server}
			if serverErr != nil {
				out.ServerError = serverErr.Error()
			}
			output.JSON(out)
			return nil
		}

		output.VersionInfo(Version, server)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
