package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/rhetor-app/rhetor/internal/model"
)

// reviewsForComplete はセッションが完了とみなされるレビュー数。
const reviewsForComplete = 2

// dashboardStyles はダッシュボード表示用のスタイル。
// 出力先が端末でない場合は装飾なしのテキストになる。
type dashboardStyles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
	ready   lipgloss.Style
	pending lipgloss.Style
	failed  lipgloss.Style
}

func newDashboardStyles(w io.Writer) dashboardStyles {
	r := lipgloss.NewRenderer(w)
	return dashboardStyles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		label:   r.NewStyle().Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		ready:   r.NewStyle().Foreground(lipgloss.Color("120")),
		pending: r.NewStyle().Foreground(lipgloss.Color("214")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

func (s dashboardStyles) status(st model.SessionStatus) lipgloss.Style {
	switch st {
	case model.SessionStatusReady:
		return s.ready
	case model.SessionStatusFailed:
		return s.failed
	default:
		return s.pending
	}
}

// renderDashboard はダッシュボードを端末向けに整形して書き込む。
func renderDashboard(w io.Writer, d *model.Dashboard) {
	st := newDashboardStyles(w)

	fmt.Fprintf(w, "%s  %s\n", st.title.Render(d.Profile.Pseudonym), st.dim.Render(fmt.Sprintf("(credits: %d)", d.Profile.Credits)))
	if len(d.Profile.Goals) > 0 {
		fmt.Fprintf(w, "%s %s\n", st.label.Render("Goals:"), strings.Join(d.Profile.Goals, ", "))
	}
	fmt.Fprintf(w, "%s %d\n", st.label.Render("Reviews you owe:"), d.PendingReviewCount)
	fmt.Fprintf(w, "%s %d\n", st.label.Render("Sessions awaiting feedback:"), d.SessionsAwaitingFeedback)
	fmt.Fprintln(w)

	if len(d.RecentSessions) == 0 {
		fmt.Fprintln(w, "No sessions yet. Run 'rhetor record' to submit your first one.")
		return
	}

	fmt.Fprintln(w, st.label.Render("Recent sessions:"))
	for _, s := range d.RecentSessions {
		// 装飾前に桁揃えしてエスケープシーケンスで列がずれないようにする
		line := fmt.Sprintf("  %-12s %-16s %s reviews %d/%d",
			s.Type,
			humanize.Time(s.SubmittedAt),
			st.status(s.Status).Render(fmt.Sprintf("%-11s", s.Status)),
			min(s.ReviewCount, reviewsForComplete),
			reviewsForComplete,
		)
		if s.MemoryScore != nil {
			line += fmt.Sprintf("  memory %.0f%%", *s.MemoryScore*100)
		}
		fmt.Fprintf(w, "%s  %s\n", line, st.dim.Render(s.ID))
	}
}
