package usecase

import (
	"context"
	"fmt"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	"github.com/AzielCF/az-autopost/domains/health"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/sirupsen/logrus"
)

const cronHistoryWindow = 50

type healthService struct {
	store     health.IStoreStatus
	scheduler domainCron.IScheduler
	cronLogs  domainCron.ICronLogRepository
	clock     civiltime.Clock
	threshold int
	hasRemote bool
}

func NewHealthService(store health.IStoreStatus, scheduler domainCron.IScheduler, cronLogs domainCron.ICronLogRepository, clock civiltime.Clock, breakerThreshold int, hasRemote bool) health.IHealthUsecase {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &healthService{
		store:     store,
		scheduler: scheduler,
		cronLogs:  cronLogs,
		clock:     clock,
		threshold: breakerThreshold,
		hasRemote: hasRemote,
	}
}

func (s *healthService) CheckStore(ctx context.Context) health.HealthRecord {
	record := health.HealthRecord{
		EntityType:  health.EntityStore,
		EntityID:    s.store.Name(),
		Status:      health.StatusOk,
		LastChecked: s.clock.Now(),
		LastMessage: "mode " + s.store.Mode(),
	}
	if s.hasRemote && !s.store.Healthy() {
		record.Status = health.StatusDegraded
		record.LastMessage = fmt.Sprintf("serving from local store: %s", s.store.LastError())
	}
	return record
}

func (s *healthService) CheckBreaker(ctx context.Context) health.HealthRecord {
	failures := s.scheduler.ConsecutiveFailures()
	record := health.HealthRecord{
		EntityType:  health.EntityBreaker,
		EntityID:    "publisher",
		Status:      health.StatusOk,
		LastChecked: s.clock.Now(),
		LastMessage: fmt.Sprintf("%d consecutive failures", failures),
	}
	if failures >= s.threshold {
		record.Status = health.StatusError
		record.LastMessage = fmt.Sprintf("open after %d consecutive failures", failures)
	}
	return record
}

// CheckCron reports the most recent run of each action.
func (s *healthService) CheckCron(ctx context.Context) ([]health.HealthRecord, error) {
	logs, err := s.cronLogs.ListCronLogs(ctx, cronHistoryWindow)
	if err != nil {
		return nil, err
	}

	actions := []domainCron.Action{domainCron.ActionScheduledPost, domainCron.ActionGenerateDrafts, domainCron.ActionCheckMetrics}
	records := make([]health.HealthRecord, 0, len(actions))
	for _, action := range actions {
		record := health.HealthRecord{
			EntityType:  health.EntityCron,
			EntityID:    string(action),
			Status:      health.StatusUnknown,
			LastChecked: s.clock.Now(),
			LastMessage: "no runs recorded",
		}
		// logs are newest first
		for _, e := range logs {
			if e.Action != action {
				continue
			}
			if record.Status == health.StatusUnknown {
				record.LastChecked = e.CreatedAt
				if e.Status == domainCron.LogFatalError {
					record.Status = health.StatusError
					record.LastMessage = e.Error
				} else {
					record.Status = health.StatusOk
					record.LastMessage = fmt.Sprintf("processed=%d success=%d failed=%d skipped=%d",
						e.ProcessedCount, e.SuccessCount, e.FailedCount, e.SkippedCount)
				}
			}
			if e.Status == domainCron.LogSuccess {
				at := e.CreatedAt
				record.LastSuccess = &at
				break
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *healthService) CheckAll(ctx context.Context) ([]health.HealthRecord, error) {
	results := []health.HealthRecord{s.CheckStore(ctx), s.CheckBreaker(ctx)}
	cron, err := s.CheckCron(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[Health] failed to read cron history")
		return results, nil
	}
	return append(results, cron...), nil
}
