package stats

import (
	"fmt"
	"strings"
)

// BuildReport renders a chat-ready playback report. Theme "weekly" covers
// the trailing 7 days, anything else the trailing day.
func BuildReport(q *Query, theme string) (string, error) {
	days := 1
	title := "Playback report (last 24h)"
	if theme == "weekly" {
		days = 7
		title = "Playback report (last 7 days)"
	}

	perDay, err := q.PlaysPerDay(days)
	if err != nil {
		return "", fmt.Errorf("stats: plays per day: %w", err)
	}
	topUsers, err := q.TopUsers(days, 5)
	if err != nil {
		return "", fmt.Errorf("stats: top users: %w", err)
	}
	topItems, err := q.TopItems(days, 5)
	if err != nil {
		return "", fmt.Errorf("stats: top items: %w", err)
	}

	var totalPlays, totalSeconds int
	for _, d := range perDay {
		totalPlays += d.Plays
		totalSeconds += d.Duration
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", title)
	fmt.Fprintf(&b, "Plays: %d, watch time: %s\n", totalPlays, FormatDuration(totalSeconds))

	if len(topUsers) > 0 {
		b.WriteString("\n*Top users*\n")
		for i, u := range topUsers {
			fmt.Fprintf(&b, "%d. %s — %d plays (%s)\n", i+1, u.UserName, u.Plays, FormatDuration(u.Duration))
		}
	}
	if len(topItems) > 0 {
		b.WriteString("\n*Top items*\n")
		for i, it := range topItems {
			fmt.Fprintf(&b, "%d. %s — %d plays\n", i+1, it.ItemName, it.Plays)
		}
	}
	if totalPlays == 0 {
		b.WriteString("\nNo playback recorded.\n")
	}
	return b.String(), nil
}

// FormatDuration renders seconds as "3h 25m" (or "12m" under an hour).
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
