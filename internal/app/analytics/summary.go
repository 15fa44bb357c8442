// Package analytics computes the completion dashboard for a user.
package analytics

import (
	"math"
	"time"

	"georemind/internal/domain/task"
)

// RecentWindow bounds RecentCompletions.
const RecentWindow = 7 * 24 * time.Hour

// Summary aggregates a user's tasks and completion history.
type Summary struct {
	TotalTasks         int                           `json:"total_tasks"`
	CompletedTasks     int                           `json:"completed_tasks"`
	PendingTasks       int                           `json:"pending_tasks"`
	AccuracyPercentage int                           `json:"accuracy_percentage"`
	CompletionByDay    map[string]int                `json:"completion_by_day"`
	RecentCompletions  int                           `json:"recent_completions"`
	CompletionByMethod map[task.CompletionMethod]int `json:"completion_by_method"`
	AverageReminders   float64                       `json:"average_reminders"`
}

// Summarize derives the dashboard. Task counts and per-day figures come from
// current task state; method breakdown and reminder averages come from the
// completion history, which survives a task being reopened.
func Summarize(tasks []*task.Task, completions []task.CompletionRecord, now time.Time) Summary {
	s := Summary{
		CompletionByDay:    make(map[string]int),
		CompletionByMethod: make(map[task.CompletionMethod]int),
	}
	cutoff := now.Add(-RecentWindow)

	for _, t := range tasks {
		if t == nil {
			continue
		}
		s.TotalTasks++
		if t.Status != task.StatusCompleted {
			s.PendingTasks++
			continue
		}
		s.CompletedTasks++
		if t.CompletedAt == nil {
			continue
		}
		at := t.CompletedAt.UTC()
		s.CompletionByDay[at.Format(time.DateOnly)]++
		if !at.Before(cutoff) {
			s.RecentCompletions++
		}
	}
	if s.TotalTasks > 0 {
		s.AccuracyPercentage = int(math.Round(float64(s.CompletedTasks) / float64(s.TotalTasks) * 100))
	}

	reminders := 0
	for _, c := range completions {
		s.CompletionByMethod[c.CompletionMethod]++
		reminders += c.ReminderCount
	}
	if len(completions) > 0 {
		s.AverageReminders = math.Round(float64(reminders)/float64(len(completions))*100) / 100
	}
	return s
}
