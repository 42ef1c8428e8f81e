package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/custodia-labs/syncengine/internal/core/domain"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
)

// isTerminal is replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// renderTable writes rows as a styled table on terminals and as plain
// tab-aligned columns otherwise.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	if !isTerminal(w) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		_ = tw.Flush()
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			style := cellStyle
			if col < len(headers) && headers[col] == "STATUS" && row >= 0 && row < len(rows) {
				style = style.Inherit(statusStyle(rows[row][col]))
			}
			return style
		})
	fmt.Fprintln(w, t.Render())
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(domain.StatusActive), string(domain.SyncSuccess):
		return successStyle
	case string(domain.StatusExpired), string(domain.SyncPartial), string(domain.SyncRateLimited), string(domain.SyncSkippedInProgress):
		return warningStyle
	case string(domain.StatusError), string(domain.StatusRevoked), string(domain.SyncFailed):
		return errorStyle
	}
	return lipgloss.NewStyle()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatCounts(c domain.SyncCounts) string {
	return fmt.Sprintf("fetched %d, created %d, updated %d, skipped %d, deferred %d, errors %d",
		c.Fetched, c.Created, c.Updated, c.Skipped, c.ConflictDeferred, c.Errored)
}
