package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cinestream/server/internal/cli/api"
)

// Stdout is where tables and JSON are written.
var Stdout io.Writer = os.Stdout

// JSON prints v as indented JSON.
func JSON(v interface{}) {
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// MovieTable prints movies as a human-readable table.
func MovieTable(movies []api.Movie) {
	if len(movies) == 0 {
		fmt.Fprintln(Stdout, "No movies found.")
		return
	}

	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tYEAR\tDIRECTOR\tGENRES\tPLAYABLE")
	for _, m := range movies {
		year := "-"
		if m.ReleaseYear > 0 {
			year = fmt.Sprintf("%d", m.ReleaseYear)
		}
		director := "-"
		if m.Director != nil {
			director = m.Director.Name
		}
		playable := "no"
		if m.Playable {
			playable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Title, year, director, genreNames(m.Genres), playable)
	}
	w.Flush()
}

// UserInfo prints the signed-in user and the permissions the server grants.
func UserInfo(me api.Me) {
	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Email:\t%s\n", me.User.Email)
	if me.User.DisplayName != "" {
		fmt.Fprintf(w, "Name:\t%s\n", me.User.DisplayName)
	}
	fmt.Fprintf(w, "Role:\t%s\n", me.User.Role)
	fmt.Fprintf(w, "ID:\t%s\n", me.User.ID)
	fmt.Fprintf(w, "Permissions:\t%d\n", len(me.Permissions))
	w.Flush()
}

// UploadResult prints the finished Drive file.
func UploadResult(f api.DriveFile) {
	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "File ID:\t%s\n", f.FileID)
	fmt.Fprintf(w, "Name:\t%s\n", f.Name)
	fmt.Fprintf(w, "Size:\t%s\n", FormatSize(f.Size))
	fmt.Fprintf(w, "Embed:\t%s\n", f.EmbedLink)
	w.Flush()
}

// Progress renders an upload progress line, overwriting the previous one.
func Progress(sent, total int64) {
	pct := 0.0
	if total > 0 {
		pct = float64(sent) * 100 / float64(total)
	}
	fmt.Fprintf(os.Stderr, "\r  %s / %s (%.0f%%)", FormatSize(sent), FormatSize(total), pct)
	if sent >= total {
		fmt.Fprintln(os.Stderr)
	}
}

// FormatSize converts bytes to a human-readable string.
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// RelativeTime formats a timestamp relative to now (e.g. "2h ago").
func RelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

func genreNames(genres []api.Genre) string {
	if len(genres) == 0 {
		return "-"
	}
	names := make([]string, len(genres))
	for i, g := range genres {
		names[i] = g.Name
	}
	return strings.Join(names, ", ")
}

// VersionInfo prints the CLI version and, when reachable, the server's.
func VersionInfo(cliVersion string, server *api.VersionInfo) {
	w := tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CLI:\t%s\n", cliVersion)
	if server == nil {
		fmt.Fprintf(w, "Server:\tunreachable\n")
		w.Flush()
		return
	}
	fmt.Fprintf(w, "Server:\t%s (API %s)\n", server.Version, server.APIVersion)
	if server.Upload.MaxFileSize > 0 {
		fmt.Fprintf(w, "Max upload:\t%s\n", FormatSize(server.Upload.MaxFileSize))
	}
	if len(server.Upload.AllowedMimeTypes) > 0 {
		fmt.Fprintf(w, "Upload types:\t%s\n", strings.Join(server.Upload.AllowedMimeTypes, ", "))
	}
	if hints := server.Upload.Recommended; hints != nil && hints.ChunkSize > 0 {
		fmt.Fprintf(w, "Chunk size:\t%s\n", FormatSize(hints.ChunkSize))
	}
	w.Flush()
}
