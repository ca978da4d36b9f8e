package status

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bnema/botfleet/internal/application"
	"github.com/bnema/botfleet/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Report is what a command wants printed. Empty sections are omitted.
type Report struct {
	Outcomes  []domain.Outcome
	Requests  []domain.BatchSnapshot
	Accounts  []domain.Account
	Cooldowns []domain.Cooldown
}

type RenderOptions struct {
	Now time.Time
	// Verbose lists every failure key of an outcome.
	Verbose bool
}

func renderView(report Report, opts RenderOptions, s styles) string {
	var sections []string

	if len(report.Outcomes) > 0 {
		sections = append(sections, renderOutcomes(report.Outcomes, opts, s))
	}
	if len(report.Requests) > 0 {
		sections = append(sections, renderRequests(report.Requests, opts, s))
	}
	if len(report.Accounts) > 0 {
		sections = append(sections, renderAccounts(report.Accounts, s))
	}
	if len(report.Cooldowns) > 0 {
		sections = append(sections, renderCooldowns(report.Cooldowns, opts, s))
	}

	if len(sections) == 0 {
		return s.empty.Render("Nothing to show.")
	}

	for i := 1; i < len(sections); i++ {
		sections[i] = s.section.Render(sections[i])
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderOutcomes(outcomes []domain.Outcome, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Requests finished")}

	for _, outcome := range outcomes {
		lines = append(lines, s.section.Render(renderOutcome(outcome, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderOutcome(outcome domain.Outcome, opts RenderOptions, s styles) string {
	percent := 0.0
	if outcome.Total > 0 {
		percent = float64(outcome.Succeeded) / float64(outcome.Total) * 100
	}

	parts := []string{
		lipgloss.JoinHorizontal(lipgloss.Top,
			s.target.Render(fmt.Sprintf("%s %s", outcome.Kind, outcome.Target.ID)),
			" ",
			statusLabel(outcome.Status, s),
		),
		lipgloss.JoinHorizontal(lipgloss.Top,
			renderProgressBar(percent, 24, s),
			" ",
			s.detail.Render(fmt.Sprintf("%d/%d succeeded", outcome.Succeeded, outcome.Total)),
		),
	}

	if outcome.RetryAttempts > 0 {
		parts = append(parts, s.meta.Render(fmt.Sprintf("retries: %d (%d recovered)", outcome.RetryAttempts, outcome.RetrySucceeded)))
	}

	if outcome.Failed > 0 {
		parts = append(parts, s.warning.Render(fmt.Sprintf("failed: %d", outcome.Failed)))
		parts = append(parts, s.key.Render("causes: ")+s.meta.Render(causeSummary(outcome.Causes)))
	}

	if opts.Verbose {
		for _, entry := range outcome.Failures {
			parts = append(parts, s.meta.Render(fmt.Sprintf("  %s %s: %s", entry.Key, entry.Cause, entry.Description)))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func causeSummary(causes map[domain.FailureCause]int) string {
	keys := make([]string, 0, len(causes))
	for cause := range causes {
		keys = append(keys, string(cause))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", key, causes[domain.FailureCause(key)]))
	}
	return strings.Join(parts, ", ")
}

func renderRequests(requests []domain.BatchSnapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Requests"),
		s.header.Render(fmt.Sprintf("tracked: %d", len(requests))),
	}

	for _, request := range requests {
		done := request.CurrentIteration + 1
		if done < 0 {
			done = 0
		}

		line := lipgloss.JoinHorizontal(lipgloss.Top,
			s.target.Render(fmt.Sprintf("%s %s", request.Kind, request.Target.ID)),
			" ",
			statusLabel(request.Status, s),
			" ",
			s.detail.Render(fmt.Sprintf("%d/%d by %s", done, request.Amount, request.RequestedBy)),
			" ",
			s.meta.Render("("+formatUntil(request.Until, opts.Now)+")"),
		)
		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAccounts(accounts []domain.Account, s styles) string {
	summary := application.Summarize(accounts)
	lines := []string{
		s.title.Render("Fleet accounts"),
		s.header.Render(fmt.Sprintf(
			"accounts: %d (online %d, limited %d, proxies %d)",
			summary.Total, summary.ByStatus[domain.AccountOnline], summary.Limited, summary.Proxies,
		)),
	}

	for _, account := range accounts {
		parts := []string{
			s.meta.Render(fmt.Sprintf("#%-3d", account.Index)),
			s.account.Render(accountTitle(account)),
			accountStatusLabel(account.Status, s),
			s.meta.Render(fmt.Sprintf("proxy %d", account.ProxyIndex)),
			s.meta.Render("auth " + authLabel(account.Auth.Method)),
		}
		if account.Limited {
			parts = append(parts, s.warning.Render("[limited]"))
		}
		lines = append(lines, strings.Join(parts, " "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderCooldowns(cooldowns []domain.Cooldown, opts RenderOptions, s styles) string {
	lines := []string{s.title.Render("Cooldowns")}

	for _, cooldown := range cooldowns {
		state := s.good.Render("ready")
		if cooldown.Active() {
			state = s.warning.Render(fmt.Sprintf("waiting %s", cooldown.Remaining.Round(time.Second)))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			s.key.Render(cooldown.UserID+":"),
			" ",
			state,
			" ",
			s.meta.Render("("+formatUntil(cooldown.Until, opts.Now)+")"),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func statusLabel(status domain.BatchStatus, s styles) string {
	label := "[" + string(status) + "]"
	switch status {
	case domain.BatchActive:
		return s.detail.Render(label)
	case domain.BatchCooldown:
		return s.good.Render(label)
	default:
		return s.warning.Render(label)
	}
}

func accountStatusLabel(status domain.AccountStatus, s styles) string {
	switch status {
	case domain.AccountOnline:
		return s.good.Render(string(status))
	case domain.AccountError:
		return s.warning.Render(string(status))
	default:
		return s.empty.Render(string(status))
	}
}

func authLabel(method domain.AuthMethod) string {
	if method == "" {
		return "none"
	}

	return string(method)
}

func accountTitle(account domain.Account) string {
	name := strings.TrimSpace(account.Name)
	if name == "" || name == string(account.ID) {
		return string(account.ID)
	}
	return fmt.Sprintf("%s (%s)", name, account.ID)
}

func renderProgressBar(donePercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	done := clampPercent(donePercent)
	filled := int(math.Round(float64(width) * done / 100))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatUntil(until, now time.Time) string {
	if until.IsZero() {
		return "no deadline"
	}
	if now.IsZero() {
		return "until " + until.Format(time.RFC3339)
	}
	if !until.After(now) {
		return "ended " + until.Format(clockLayout(until, now))
	}

	remaining := until.Sub(now)
	if remaining < time.Hour {
		minutes := int(math.Ceil(remaining.Minutes()))
		return fmt.Sprintf("%dm left, until %s", minutes, until.Format(clockLayout(until, now)))
	}

	hours := int(math.Ceil(remaining.Hours()))
	suffix := "hours"
	if hours == 1 {
		suffix = "hour"
	}
	return fmt.Sprintf("%d %s left, until %s", hours, suffix, until.Format(clockLayout(until, now)))
}

func clockLayout(t, now time.Time) string {
	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := t.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return "15:04"
	}
	return "15:04 on 02 Jan"
}
