package repository

import (
	"context"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
)

type cronLogModel struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	RunID          string `gorm:"column:run_id;index"`
	Action         string `gorm:"index"`
	Status         string
	DurationMs     int64
	ProcessedCount int
	SuccessCount   int
	FailedCount    int
	SkippedCount   int
	Error          string `gorm:"type:text"`
	CreatedAt      time.Time

	ConsecutiveFailures int `gorm:"not null;default:0"`
}

func (cronLogModel) TableName() string {
	return "cron_logs"
}

func (r *GormRepository) AppendCronLog(ctx context.Context, entry domainCron.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.clock.Now()
	}
	model := cronLogModel{
		RunID:          entry.RunID,
		Action:         string(entry.Action),
		Status:         string(entry.Status),
		DurationMs:     entry.DurationMs,
		ProcessedCount: entry.ProcessedCount,
		SuccessCount:   entry.SuccessCount,
		FailedCount:    entry.FailedCount,
		SkippedCount:   entry.SkippedCount,
		Error:          entry.Error,
		CreatedAt:      entry.CreatedAt,

		ConsecutiveFailures: entry.ConsecutiveFailures,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListCronLogs returns the newest entries first.
func (r *GormRepository) ListCronLogs(ctx context.Context, limit int) ([]domainCron.LogEntry, error) {
	var models []cronLogModel
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]domainCron.LogEntry, len(models))
	for i, m := range models {
		result[i] = domainCron.LogEntry{
			RunID:          m.RunID,
			Action:         domainCron.Action(m.Action),
			Status:         domainCron.LogStatus(m.Status),
			DurationMs:     m.DurationMs,
			ProcessedCount: m.ProcessedCount,
			SuccessCount:   m.SuccessCount,
			FailedCount:    m.FailedCount,
			SkippedCount:   m.SkippedCount,
			Error:          m.Error,
			CreatedAt:      m.CreatedAt.UTC(),

			ConsecutiveFailures: m.ConsecutiveFailures,
		}
	}
	return result, nil
}
