package cronjob

import (
	"context"
	"fmt"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule is what RUN_MODE=local registers. Specs are read in the
// civil location.
var DefaultSchedule = map[domainCron.Action]string{
	domainCron.ActionScheduledPost:  "*/5 * * * *",
	domainCron.ActionGenerateDrafts: "0 8 * * *",
	domainCron.ActionCheckMetrics:   "30 * * * *",
}

// Runner triggers cron actions in-process. Each action goes through
// RunCronSequence, so the store lock still guards against an external
// trigger firing at the same time.
type Runner struct {
	cron      *cron.Cron
	scheduler domainCron.IScheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(scheduler domainCron.IScheduler, schedule map[domainCron.Action]string) (*Runner, error) {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	c := cron.New(
		cron.WithLocation(civiltime.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{cron: c, scheduler: scheduler, ctx: ctx, cancel: cancel}

	for action, spec := range schedule {
		if !action.Valid() {
			cancel()
			return nil, fmt.Errorf("unknown cron action %q", action)
		}
		action := action
		if _, err := c.AddFunc(spec, func() { r.run(action) }); err != nil {
			cancel()
			return nil, fmt.Errorf("cron spec %q for %s: %w", spec, action, err)
		}
		logrus.Infof("[SCHEDULER] registered %s at %q", action, spec)
	}
	return r, nil
}

func (r *Runner) run(action domainCron.Action) {
	entry, locked, err := r.scheduler.RunCronSequence(r.ctx, action)
	switch {
	case err != nil:
		logrus.WithError(err).Errorf("[SCHEDULER] %s could not run", action)
	case locked:
		logrus.Debugf("[SCHEDULER] %s skipped, lock held elsewhere", action)
	default:
		logrus.Debugf("[SCHEDULER] %s finished with %s in %dms", action, entry.Status, entry.DurationMs)
	}
}

func (r *Runner) Start() {
	r.cron.Start()
	logrus.Info("[SCHEDULER] local cron started")
}

// Stop waits for running jobs, then cancels their context.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.cancel()
	logrus.Info("[SCHEDULER] local cron stopped")
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}
