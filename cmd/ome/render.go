package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"ome/internal/service"
	"ome/internal/supplytree"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func statusStyle(s service.Status) lipgloss.Style {
	switch s {
	case service.StatusOK:
		return okStyle
	case service.StatusPartial:
		return warnStyle
	default:
		return failStyle
	}
}

// renderReport renders matched pairs, then errors, then a one-line footer.
func renderReport(r *service.MatchingReport) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Matches"))
	sb.WriteByte('\n')
	rows := 0
	for _, res := range r.Results {
		if !res.Matched {
			continue
		}
		rows++
		sb.WriteString(fmt.Sprintf("  %-28s -> %-28s %.2f  %-10s %s\n",
			clip(res.Requirement, 28), clip(res.Capability, 28),
			res.Confidence, res.Layer, dimStyle.Render(string(res.Metadata.Quality))))
	}
	if rows == 0 {
		sb.WriteString(dimStyle.Render("  (none)"))
		sb.WriteByte('\n')
	}

	if len(r.Errors) > 0 {
		sb.WriteString(headerStyle.Render("Errors"))
		sb.WriteByte('\n')
		for _, e := range r.Errors {
			sb.WriteString("  " + failStyle.Render(string(e.Kind)) + " " + e.Message + "\n")
		}
	}

	sb.WriteString(fmt.Sprintf("%s domain=%s results=%d elapsed=%s",
		statusStyle(r.Status).Render(strings.ToUpper(string(r.Status))),
		r.Domain, len(r.Results), r.Elapsed.Round(0)))
	return sb.String()
}

// renderTree renders the per-requirement candidate ranking and the
// tree-level scores.
func renderTree(t *supplytree.SupplyTree) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render("Supply Tree"))
	sb.WriteByte('\n')

	reqs := make([]string, 0, len(t.Candidates))
	for req := range t.Candidates {
		reqs = append(reqs, req)
	}
	sort.Strings(reqs)

	for _, req := range reqs {
		cands := t.Candidates[req]
		if len(cands) == 0 {
			sb.WriteString(fmt.Sprintf("  %s %s\n", clip(req, 28), failStyle.Render("UNCOVERED")))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s\n", req))
		for i, c := range cands {
			marker := "  "
			if i == 0 {
				marker = okStyle.Render("▸ ")
			}
			sb.WriteString(fmt.Sprintf("    %s%-28s %.2f %s\n", marker, clip(c.Capability, 28), c.Confidence, dimStyle.Render(string(c.Layer))))
		}
	}

	review := okStyle.Render("no review needed")
	if t.RequiresReview {
		review = warnStyle.Render("REQUIRES REVIEW: " + strings.Join(t.ReviewReasons, "; "))
	}
	sb.WriteString(fmt.Sprintf("coverage=%.2f confidence=%.2f  %s", t.Coverage, t.OverallConfidence, review))
	return sb.String()
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
