package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/attend/internal/attention"
)

var priorityIcons = map[string]string{
	"p0": "🔴", "p1": "🟠", "p2": "🟡", "p3": "🟢",
}

func formatDailyDigest(view attention.TodayView, now time.Time) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("📋 *Today's Attention* — %s", now.Format("Jan 02")))

	if len(view.TopActionable) == 0 {
		lines = append(lines, "\nNothing actionable. Enjoy the quiet.")
	} else {
		lines = append(lines, "")
		for _, candidate := range view.TopActionable {
			lines = append(lines, "• "+candidateLine(candidate, now))
		}
	}

	if len(view.DueNext72h) > 0 {
		lines = append(lines, "", fmt.Sprintf("⏰ *Due within 72h* (%d)", len(view.DueNext72h)))
		for _, candidate := range view.DueNext72h {
			lines = append(lines, "• "+candidateLine(candidate, now))
		}
	}

	if view.StaleCleanupCandidate != nil {
		lines = append(lines, "", "🧹 *Stale cleanup candidate*")
		lines = append(lines, "• "+candidateLine(*view.StaleCleanupCandidate, now))
	}
	return strings.Join(lines, "\n")
}

func formatWeeklyDigest(view attention.WeekView, now time.Time) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("🗓 *This Week* — %s", now.Format("Jan 02")))

	lines = append(lines, "", fmt.Sprintf("⏰ *Due this week* (%d)", len(view.DueThisWeek)))
	for _, candidate := range view.DueThisWeek {
		lines = append(lines, "• "+candidateLine(candidate, now))
	}

	if len(view.HighPriorityWithoutDue) > 0 {
		lines = append(lines, "", fmt.Sprintf("🎯 *High priority, no due date* (%d)", len(view.HighPriorityWithoutDue)))
		for _, candidate := range view.HighPriorityWithoutDue {
			lines = append(lines, "• "+candidateLine(candidate, now))
		}
	}

	if len(view.BlockedSummary) > 0 {
		lines = append(lines, "", fmt.Sprintf("🚧 *Blocked* (%d)", len(view.BlockedSummary)))
		for _, candidate := range view.BlockedSummary {
			lines = append(lines, "• "+candidateLine(candidate, now))
		}
	}
	return strings.Join(lines, "\n")
}

func formatUrgentReminder(candidate attention.Candidate) string {
	icon := priorityIcons[string(candidate.Task.Priority)]
	lines := []string{
		"🔔 *Urgent*",
		"",
		fmt.Sprintf("%s %s (score %.0f)", icon, candidate.Task.Title, candidate.UrgencyScore),
		"_" + candidate.UrgencyExplanation + "_",
	}
	return strings.Join(lines, "\n")
}

func candidateLine(candidate attention.Candidate, now time.Time) string {
	icon := priorityIcons[string(candidate.Task.Priority)]
	line := fmt.Sprintf("%s %s", icon, candidate.Task.Title)
	if due := formatDue(candidate.Task.DueAt, now); due != "" {
		line += " — " + due
	}
	if candidate.IsStale {
		line += " ⚠️"
	}
	return line
}

func formatDue(due *time.Time, now time.Time) string {
	if due == nil {
		return ""
	}
	switch {
	case due.Year() == now.Year() && due.YearDay() == now.YearDay():
		return "today"
	case due.Before(now):
		days := int(now.Sub(*due).Hours() / 24)
		if days < 1 {
			days = 1
		}
		return fmt.Sprintf("%dd overdue", days)
	default:
		return due.Format("Jan 02")
	}
}
