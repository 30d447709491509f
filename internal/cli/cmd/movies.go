package cmd

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/cinestream/server/internal/cli/api"
	"github.com/cinestream/server/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagSearch string
	flagGenre  string
	flagPage   int
	flagLimit  int
)

var moviesCmd = &cobra.Command{
	Use:   "movies",
	Short: "Browse the movie catalog",
}

var moviesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List movies",
	Long: `List movies in the catalog.

  cinestream movies ls
  cinestream movies ls --search heat
  cinestream movies ls --genre <genre-id> --page 2`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagSearch != "" {
			params.Set("search", flagSearch)
		}
		if flagGenre != "" {
			params.Set("genre", flagGenre)
		}
		if flagPage > 0 {
			params.Set("page", strconv.Itoa(flagPage))
		}
		if flagLimit > 0 {
			params.Set("limit", strconv.Itoa(flagLimit))
		}

		var resp api.Response[[]api.Movie]
		if err := apiClient.Get("/movies", params, &resp); err != nil {
			return fmt.Errorf("listing movies: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.MovieTable(resp.Data)
		if p := resp.Pagination; p != nil && p.TotalPages > 1 {
			fmt.Printf("\nPage %d of %d (%d movies)\n", p.Page, p.TotalPages, p.Total)
		}
		return nil
	},
}

var moviesAttachCmd = &cobra.Command{
	Use:   "attach <movie-id> <drive-file-id>",
	Short: "Attach an uploaded Drive file to a movie",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		movie, err := attachVideo(args[0], args[1])
		if err != nil {
			return err
		}
		if flagJSON {
			output.JSON(movie)
			return nil
		}
		fmt.Printf("Attached %s to %q\n", args[1], movie.Title)
		return nil
	},
}

func init() {
	moviesLsCmd.Flags().StringVar(&flagSearch, "search", "", "Filter by title")
	moviesLsCmd.Flags().StringVar(&flagGenre, "genre", "", "Filter by genre ID")
	moviesLsCmd.Flags().IntVar(&flagPage, "page", 0, "Page number")
	moviesLsCmd.Flags().IntVar(&flagLimit, "limit", 0, "Movies per page")
	moviesCmd.AddCommand(moviesLsCmd, moviesAttachCmd)
	rootCmd.AddCommand(moviesCmd)
}

func attachVideo(movieID, fileID string) (*api.Movie, error) {
	var resp api.Response[api.Movie]
	if err := apiClient.Put("/movies/"+movieID, map[string]string{"videoFileID": fileID}, &resp); err != nil {
		return nil, fmt.Errorf("updating movie %s: %w", movieID, err)
	}
	return &resp.Data, nil
}
