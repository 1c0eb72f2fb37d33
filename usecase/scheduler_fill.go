package usecase

import (
	"context"
	"fmt"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainNotify "github.com/AzielCF/az-autopost/domains/notify"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/sirupsen/logrus"
)

var fillStages = []string{"S1", "S2", "S3", "S1", "S2", "S4"}

// GenerateDailyDrafts tops up each of the next FillDays civil days to
// DraftsPerDay occupied slots. Generator failures on one day do not stop
// the other days.
func (service *serviceScheduler) GenerateDailyDrafts(ctx context.Context) (domainCron.RunStats, error) {
	var stats domainCron.RunStats
	now := service.clock.Now()

	posts, err := service.deps.Store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list posts: %w", err)
	}

	today := civiltime.StartOfDay(now)
	for offset := 0; offset < service.cfg.FillDays; offset++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		day := today.AddDate(0, 0, offset)
		missing := service.missingSlots(posts, day, now)
		if len(missing) == 0 {
			continue
		}

		dow := int(civiltime.Weekday(day))
		date := civiltime.CivilDate(day)
		logrus.Infof("[SCHEDULER] %s needs %d more drafts", date, len(missing))

		drafts, err := service.deps.Generator.Generate(ctx, service.generateRequest(ctx, now, posts, len(missing), weekdayStages[dow]))
		if err != nil {
			logrus.WithError(err).Errorf("[GENERATE] daily fill for %s failed", date)
			stats.Failed++
			continue
		}

		created := 0
		for i, d := range drafts {
			if i >= len(missing) {
				break
			}
			stats.Processed++
			p := draftToPost(d, "")
			p.Status = domainPost.StatusScheduled
			p.ScheduledAt = civiltime.FormatCivil(service.deps.Jitter.Apply(missing[i].On(day)))
			if p.Stage == "" {
				p.Stage = fillStages[(dow+i)%len(fillStages)]
			}
			if p.ABVersion == "" {
				p.ABVersion = abVersions[i%len(abVersions)]
			}

			saved, skip, err := service.deps.Committer.Commit(ctx, p)
			if err != nil {
				return stats, fmt.Errorf("commit draft for %s: %w", date, err)
			}
			if skip != nil {
				stats.Skip(*skip)
				continue
			}
			stats.Success++
			created++
			posts = append(posts, saved)
		}

		if created > 0 {
			service.deps.Notifier.Notify(ctx, domainNotify.SeverityInfo,
				fmt.Sprintf("Filled %d of %d empty slots on %s", created, len(missing), date))
		}
	}

	stock := 0
	for _, p := range posts {
		if p.Status == domainPost.StatusScheduled || p.Status == domainPost.StatusDraftAI {
			stock++
		}
	}
	if stock < service.cfg.LowStockThreshold {
		logrus.Warnf("[SCHEDULER] low stock: %d posts queued", stock)
		service.deps.Notifier.Notify(ctx, domainNotify.SeverityWarning,
			fmt.Sprintf("Low stock: only %d posts queued (threshold %d)", stock, service.cfg.LowStockThreshold))
	}
	return stats, nil
}

// missingSlots lists the configured slots of day with no occupying post,
// capped at DraftsPerDay minus the occupied count. Slots already past now
// are left out.
func (service *serviceScheduler) missingSlots(posts []domainPost.Post, day, now time.Time) []civiltime.SlotTime {
	date := civiltime.CivilDate(day)
	taken := make(map[int]bool)
	occupied := 0
	for _, p := range posts {
		if !p.Status.OccupiesSlot() {
			continue
		}
		at, ok := civiltime.TryParseCivil(p.ScheduledAt)
		if !ok || civiltime.CivilDate(at) != date {
			continue
		}
		occupied++
		taken[civiltime.Hour(at)] = true
	}

	need := service.cfg.DraftsPerDay - occupied
	if need <= 0 {
		return nil
	}
	var out []civiltime.SlotTime
	for _, slot := range service.fillSlots {
		if len(out) >= need {
			break
		}
		if taken[slot.Hour] || slot.On(day).Before(now) {
			continue
		}
		out = append(out, slot)
	}
	return out
}
