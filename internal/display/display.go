// Package display renders scan results and triaged records for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mikey/inbox-triage/internal/core"
)

var (
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	criticalStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626")).Bold(true)
	importantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	usefulStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb"))
	lowStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))

	laneTitle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func priorityStyle(p core.Priority) lipgloss.Style {
	switch p {
	case core.PriorityCritical:
		return criticalStyle
	case core.PriorityImportant:
		return importantStyle
	case core.PriorityUseful:
		return usefulStyle
	default:
		return lowStyle
	}
}

// PriorityLabel returns a padded, colored priority label
func PriorityLabel(p core.Priority) string {
	return priorityStyle(p).Render(fmt.Sprintf("%-9s", strings.ToUpper(string(p))))
}

// LaneTitle names a lane the way the CLI headers show it
func LaneTitle(lane core.Lane) string {
	switch lane {
	case core.LaneOpportunity:
		return laneTitle.Render("Opportunities")
	case core.LaneOperation:
		return laneTitle.Render("Operations")
	default:
		return laneTitle.Render(string(lane))
	}
}

// TimeAgo formats t relative to now
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens s to maxLen runes, adding an ellipsis if needed
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// Records prints one lane listing
func Records(w io.Writer, lane core.Lane, recs []*core.ClassifiedMessage, now time.Time) {
	fmt.Fprintln(w, LaneTitle(lane))
	if len(recs) == 0 {
		fmt.Fprintln(w, Muted.Render("  nothing here yet"))
		return
	}
	for _, r := range recs {
		marker := Bold.Render("●")
		if r.Read {
			marker = Dim.Render("○")
		}
		score := fmt.Sprintf("%3d", r.ImportanceScore)
		fmt.Fprintf(w, "%s %s %s %s  %s\n",
			marker,
			PriorityLabel(r.Priority),
			Bold.Render(score),
			Truncate(r.Subject, 60),
			Dim.Render(TimeAgo(r.Date, now)))
		fmt.Fprintf(w, "    %s  %s\n", Muted.Render(Truncate(r.Sender, 40)), Dim.Render(r.ID))
		if r.Summary != "" {
			fmt.Fprintf(w, "    %s\n", Truncate(r.Summary, 120))
		}
	}
}

// Stats prints the per-lane counters
func Stats(w io.Writer, s *core.LaneStats) {
	fmt.Fprintln(w, Bold.Render("Inbox statistics"))
	fmt.Fprintf(w, "  %-15s %5d\n", "Total", s.Total)
	fmt.Fprintf(w, "  %-15s %5d  %s\n", "Opportunities", s.Opportunities, Dim.Render(fmt.Sprintf("(%d unread)", s.UnreadOpportunities)))
	fmt.Fprintf(w, "  %-15s %5d  %s\n", "Operations", s.Operations, Dim.Render(fmt.Sprintf("(%d unread)", s.UnreadOperations)))
	fmt.Fprintf(w, "  %-15s %5.1f\n", "Avg thesis", s.AvgThesisScore)
}

// ScanResult prints the outcome of one scan, err being the failure if any
func ScanResult(w io.Writer, res *core.ScanResult, err error) {
	if err != nil {
		reason := core.FailureReasonOf(err)
		fmt.Fprintf(w, "%s scan for %s failed (%s): %v\n", ErrStyle.Render("✗"), res.UserID, reason, err)
	} else {
		fmt.Fprintf(w, "%s scan for %s completed\n", Success.Render("✓"), res.UserID)
	}
	if !res.Window.Since.IsZero() {
		fmt.Fprintf(w, "  %s\n", Dim.Render(fmt.Sprintf("window %s → %s (%s)",
			res.Window.Since.Format(time.RFC3339), res.Window.Until.Format(time.RFC3339), res.Window.Source)))
	}
	if res.Message != "" {
		fmt.Fprintf(w, "  %s\n", res.Message)
	}
}

// Backlog prints the unscanned count for a user. level is "urgent", "notify"
// or empty.
func Backlog(w io.Writer, userID string, unscanned, checked int, level string) {
	count := fmt.Sprintf("%d unscanned", unscanned)
	switch level {
	case "urgent":
		count = criticalStyle.Render(count)
	case "notify":
		count = importantStyle.Render(count)
	}
	fmt.Fprintf(w, "%s %s %s\n", Bold.Render(userID), count, Dim.Render(fmt.Sprintf("(%d checked)", checked)))
}

// SuccessMsg prints a green checkmark and message
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}
