package cron

import (
	"context"
	"fmt"
	"time"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
)

type Action string

const (
	ActionScheduledPost  Action = "scheduled_post"
	ActionGenerateDrafts Action = "generate_drafts"
	ActionCheckMetrics   Action = "check_metrics"
)

func (a Action) Valid() bool {
	return a == ActionScheduledPost || a == ActionGenerateDrafts || a == ActionCheckMetrics
}

// Sequence expands a trigger request into the actions to run, in order.
// Posting always runs first. An empty request or "all" runs every action.
func Sequence(requested string) ([]Action, error) {
	switch requested {
	case "", "all":
		return []Action{ActionScheduledPost, ActionGenerateDrafts, ActionCheckMetrics}, nil
	case string(ActionScheduledPost):
		return []Action{ActionScheduledPost}, nil
	}
	a := Action(requested)
	if !a.Valid() {
		return nil, fmt.Errorf("unknown cron action %q", requested)
	}
	return []Action{ActionScheduledPost, a}, nil
}

// LockKey is the lock name guarding one action.
func (a Action) LockKey() string {
	return "cron_" + string(a)
}

type LogStatus string

const (
	LogSuccess    LogStatus = "success"
	LogFatalError LogStatus = "fatal_error"
	LogLocked     LogStatus = "locked"
)

// LogEntry is the append-only audit record of one invocation.
type LogEntry struct {
	RunID          string    `json:"run_id"`
	Action         Action    `json:"action"`
	Status         LogStatus `json:"status"`
	DurationMs     int64     `json:"duration_ms"`
	ProcessedCount int       `json:"processed_count"`
	SuccessCount   int       `json:"success_count"`
	FailedCount    int       `json:"failed_count"`
	SkippedCount   int       `json:"skipped_count"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// ConsecutiveFailures snapshots the publish breaker after a
	// scheduled_post run so the next process can resume it.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

type ICronLogRepository interface {
	AppendCronLog(ctx context.Context, entry LogEntry) error
	ListCronLogs(ctx context.Context, limit int) ([]LogEntry, error)
}

// RunStats summarizes one sub-procedure run.
type RunStats struct {
	Processed int               `json:"processed_count"`
	Success   int               `json:"success_count"`
	Failed    int               `json:"failed_count"`
	Skipped   int               `json:"skipped_count"`
	Reason    string            `json:"reason,omitempty"`
	Skips     []domainPost.Skip `json:"skips,omitempty"`
}

func (s *RunStats) Skip(sk domainPost.Skip) {
	s.Skipped++
	s.Skips = append(s.Skips, sk)
}

type IScheduler interface {
	// RunCronSequence runs one action under its lock and records the outcome.
	// It reports locked=true when another invocation held the lock.
	RunCronSequence(ctx context.Context, action Action) (entry LogEntry, locked bool, err error)
	ProcessScheduledPosts(ctx context.Context) (RunStats, error)
	GenerateDailyDrafts(ctx context.Context) (RunStats, error)
	CheckMetrics(ctx context.Context) (RunStats, error)
	ConsecutiveFailures() int
	ResetCircuit()
}
