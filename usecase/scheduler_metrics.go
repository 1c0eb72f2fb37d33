package usecase

import (
	"context"
	"fmt"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/sirupsen/logrus"
)

const (
	firstSnapshotAge  = time.Hour
	secondSnapshotAge = 24 * time.Hour
)

// CheckMetrics takes the 1h and 24h engagement snapshots of posted items.
// A post gets at most one snapshot per run; the 24h one wins once due.
func (service *serviceScheduler) CheckMetrics(ctx context.Context) (domainCron.RunStats, error) {
	var stats domainCron.RunStats
	now := service.clock.Now()

	posts, err := service.deps.Store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list posts: %w", err)
	}

	for _, p := range posts {
		if p.Status != domainPost.StatusPosted || p.TweetID == "" || p.PostedAt == nil {
			continue
		}
		age := now.Sub(*p.PostedAt)

		var patch domainPost.Patch
		var window string
		switch {
		case age >= secondSnapshotAge && p.Metrics24h == nil:
			window = "24h"
		case age >= firstSnapshotAge && age < secondSnapshotAge && p.Metrics1h == nil:
			window = "1h"
		default:
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Processed++
		m, err := service.deps.Publisher.Metrics(ctx, p.TweetID)
		if err != nil {
			logrus.WithError(err).Warnf("[METRICS] %s snapshot failed for post %s", window, p.ID)
			stats.Failed++
			continue
		}
		if m == nil {
			stats.Skipped++
			continue
		}

		if window == "24h" {
			patch.Metrics24h = m
		} else {
			patch.Metrics1h = m
		}
		patch.MetricsCheckedAt = &now
		if err := service.deps.Store.Update(ctx, p.ID, patch); err != nil {
			logrus.WithError(err).Warnf("[METRICS] could not store %s snapshot for post %s", window, p.ID)
			stats.Failed++
			continue
		}
		logrus.Debugf("[METRICS] post %s %s: like=%d rt=%d reply=%d", p.ID, window, m.Like, m.Retweet, m.Reply)
		stats.Success++
	}
	return stats, nil
}
