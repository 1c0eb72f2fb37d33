package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/AzielCF/az-autopost/core/config"
	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainLock "github.com/AzielCF/az-autopost/domains/lock"
	domainNotify "github.com/AzielCF/az-autopost/domains/notify"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainPublisher "github.com/AzielCF/az-autopost/domains/publisher"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	recentContextPosts = 10
	breakerLookback    = 50
)

// SchedulerDeps wires the scheduler. News is optional.
type SchedulerDeps struct {
	Store     domainPost.IPostStore
	Locker    domainLock.ILocker
	CronLogs  domainCron.ICronLogRepository
	Committer domainPost.ICommitter
	Generator domainGenerator.IContentGenerator
	News      domainGenerator.INewsSource
	Publisher domainPublisher.IPublisher
	Notifier  domainNotify.INotifier
	Engine    *dedupe.Engine
	Jitter    *Jitter
	Clock     civiltime.Clock
	Config    config.ScheduleConfig
	NGWords   []string
}

type serviceScheduler struct {
	deps      SchedulerDeps
	cfg       config.ScheduleConfig
	clock     civiltime.Clock
	fillSlots []civiltime.SlotTime

	// consecutive publish failures across runs; reset on any success
	failures atomic.Int64
	resumed  atomic.Bool
}

func NewSchedulerService(deps SchedulerDeps) (domainCron.IScheduler, error) {
	slots, err := civiltime.ParseSlotTimes(deps.Config.SlotTimes)
	if err != nil {
		return nil, fmt.Errorf("slot times: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = civiltime.SystemClock{}
	}
	return &serviceScheduler{
		deps:      deps,
		cfg:       deps.Config,
		clock:     deps.Clock,
		fillSlots: slots,
	}, nil
}

func (service *serviceScheduler) ConsecutiveFailures() int {
	return int(service.failures.Load())
}

func (service *serviceScheduler) ResetCircuit() {
	service.resumed.Store(true)
	if service.failures.Swap(0) > 0 {
		logrus.Info("[SCHEDULER] circuit breaker reset")
	}
}

// resumeFailures loads the breaker count left by the last scheduled_post
// run, once per process, so one-shot invocations share one breaker.
func (service *serviceScheduler) resumeFailures(ctx context.Context) {
	if service.resumed.Swap(true) {
		return
	}
	entries, err := service.deps.CronLogs.ListCronLogs(ctx, breakerLookback)
	if err != nil {
		logrus.WithError(err).Warn("[SCHEDULER] could not read the last breaker state")
		return
	}
	for _, e := range entries {
		if e.Action != domainCron.ActionScheduledPost || e.Status == domainCron.LogLocked {
			continue
		}
		if e.ConsecutiveFailures > 0 {
			service.failures.CompareAndSwap(0, int64(e.ConsecutiveFailures))
			logrus.Infof("[SCHEDULER] resuming with %d consecutive publish failures", e.ConsecutiveFailures)
		}
		return
	}
}

func (service *serviceScheduler) tripped() bool {
	return service.ConsecutiveFailures() >= service.cfg.BreakerThreshold
}

// RunCronSequence runs one action under its named lock. A held lock ends
// the invocation quietly. Sub-procedure errors and panics are logged as
// fatal_error entries and raised as fatal notifications; they do not
// propagate to the caller.
func (service *serviceScheduler) RunCronSequence(ctx context.Context, action domainCron.Action) (entry domainCron.LogEntry, locked bool, err error) {
	if !action.Valid() {
		return domainCron.LogEntry{}, false, fmt.Errorf("unknown cron action %q", action)
	}

	start := service.clock.Now()
	entry = domainCron.LogEntry{
		RunID:     uuid.NewString(),
		Action:    action,
		CreatedAt: start,
	}

	ttl := service.cfg.LockTTL
	if action == domainCron.ActionGenerateDrafts {
		ttl = service.cfg.GenerateLockTTL
	}
	key := action.LockKey()
	ok, err := service.deps.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return entry, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		logrus.Warnf("[SCHEDULER] %s is already running elsewhere, skipping", action)
		entry.Status = domainCron.LogLocked
		return entry, true, nil
	}
	defer func() {
		if relErr := service.deps.Locker.Release(context.WithoutCancel(ctx), key); relErr != nil {
			logrus.WithError(relErr).Warnf("[SCHEDULER] failed to release %s", key)
		}
	}()

	stats, runErr := service.dispatch(ctx, action)

	entry.DurationMs = service.clock.Now().Sub(start).Milliseconds()
	entry.ProcessedCount = stats.Processed
	entry.SuccessCount = stats.Success
	entry.FailedCount = stats.Failed
	entry.SkippedCount = stats.Skipped
	if action == domainCron.ActionScheduledPost {
		entry.ConsecutiveFailures = service.ConsecutiveFailures()
	}
	entry.Status = domainCron.LogSuccess
	if runErr != nil {
		entry.Status = domainCron.LogFatalError
		entry.Error = runErr.Error()
		logrus.WithError(runErr).Errorf("[SCHEDULER] %s failed", action)
		service.deps.Notifier.Notify(context.WithoutCancel(ctx), domainNotify.SeverityFatal, fmt.Sprintf("Cron Fatal Error: %s\n%s", action, runErr))
	} else {
		logrus.Infof("[SCHEDULER] %s done: processed=%d success=%d failed=%d skipped=%d",
			action, stats.Processed, stats.Success, stats.Failed, stats.Skipped)
	}

	if logErr := service.deps.CronLogs.AppendCronLog(context.WithoutCancel(ctx), entry); logErr != nil {
		logrus.WithError(logErr).Warn("[SCHEDULER] failed to append cron log")
	}
	return entry, false, nil
}

func (service *serviceScheduler) dispatch(ctx context.Context, action domainCron.Action) (stats domainCron.RunStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	switch action {
	case domainCron.ActionScheduledPost:
		return service.ProcessScheduledPosts(ctx)
	case domainCron.ActionGenerateDrafts:
		return service.GenerateDailyDrafts(ctx)
	default:
		return service.CheckMetrics(ctx)
	}
}

type dueCandidate struct {
	post domainPost.Post
	at   time.Time
}

// selectDue returns scheduled or retry posts due within the buffer, oldest
// first. Posts older than StaleAfter are reported as stale skips instead.
func (service *serviceScheduler) selectDue(posts []domainPost.Post, now time.Time) ([]dueCandidate, []domainPost.Skip) {
	var (
		due   []dueCandidate
		stale []domainPost.Skip
	)
	horizon := now.Add(service.cfg.DueBuffer)
	for _, p := range posts {
		if p.Status != domainPost.StatusScheduled && p.Status != domainPost.StatusRetry {
			continue
		}
		if p.RetryCount >= service.cfg.MaxRetries {
			continue
		}
		at := civiltime.ParseCivil(p.ScheduledAt)
		if at.After(horizon) {
			continue
		}
		if now.Sub(at) > service.cfg.StaleAfter {
			logrus.Debugf("[SCHEDULER] post %s is stale (%s), leaving it for manual review", p.ID, p.ScheduledAt)
			stale = append(stale, domainPost.Skip{PostID: p.ID, SlotID: slotOf(p), Reason: domainPost.SkipStale})
			continue
		}
		due = append(due, dueCandidate{post: p, at: at})
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	return due, stale
}

// postedOn counts posts whose PostedAt falls on the civil day of now.
func postedOn(posts []domainPost.Post, now time.Time) int {
	day := civiltime.CivilDate(now)
	n := 0
	for _, p := range posts {
		if p.Status == domainPost.StatusPosted && p.PostedAt != nil && civiltime.CivilDate(*p.PostedAt) == day {
			n++
		}
	}
	return n
}

func (service *serviceScheduler) ProcessScheduledPosts(ctx context.Context) (domainCron.RunStats, error) {
	var stats domainCron.RunStats
	now := service.clock.Now()
	service.resumeFailures(ctx)

	posts, err := service.deps.Store.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list posts: %w", err)
	}

	due, stale := service.selectDue(posts, now)
	for _, sk := range stale {
		stats.Skip(sk)
	}

	if service.tripped() {
		logrus.Warnf("[SCHEDULER] circuit breaker open after %d failures, skipping %d due posts", service.ConsecutiveFailures(), len(due))
		stats.Reason = string(domainPost.SkipCircuitBreaker)
		for _, c := range due {
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotOf(c.post), Reason: domainPost.SkipCircuitBreaker})
		}
		return stats, nil
	}

	if len(due) > service.cfg.BatchSize {
		due = due[:service.cfg.BatchSize]
	}

	postedSlots := make(map[string]string)
	for _, p := range posts {
		if p.Status == domainPost.StatusPosted {
			if id := slotOf(p); id != "" {
				postedSlots[id] = p.ID
			}
		}
	}

	var batch []dueCandidate
	seen := make(map[string]bool)
	for _, c := range due {
		slotID := slotOf(c.post)
		if holder, ok := postedSlots[slotID]; ok {
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotID, Reason: domainPost.SkipSlotPosted, MatchedID: holder})
			continue
		}
		if seen[slotID] {
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotID, Reason: domainPost.SkipBatchDuplicate})
			continue
		}
		seen[slotID] = true
		batch = append(batch, c)
	}

	if len(batch) == 0 {
		return stats, service.emergencyPost(ctx, now, posts, &stats)
	}

	publishedToday := postedOn(posts, now)
	for _, c := range batch {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		slotID := slotOf(c.post)
		if service.tripped() {
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotID, Reason: domainPost.SkipCircuitBreaker})
			continue
		}
		if publishedToday >= service.cfg.DailyCap {
			logrus.Warnf("[SCHEDULER] daily cap of %d reached, holding post %s", service.cfg.DailyCap, c.post.ID)
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotID, Reason: domainPost.SkipDailyCapReached})
			continue
		}

		fresh, err := service.deps.Store.FindByID(ctx, c.post.ID)
		if err != nil || (fresh.Status != domainPost.StatusScheduled && fresh.Status != domainPost.StatusRetry) {
			if err != nil {
				logrus.WithError(err).Warnf("[SCHEDULER] could not re-read post %s", c.post.ID)
			}
			stats.Skip(domainPost.Skip{PostID: c.post.ID, SlotID: slotID, Reason: domainPost.SkipNoLongerDue})
			continue
		}

		stats.Processed++
		out, err := publishAndRecord(ctx, service.deps.Store, service.deps.Publisher, fresh, service.clock.Now(), service.cfg.MaxRetries)
		if out.Err == nil {
			stats.Success++
			publishedToday++
			service.ResetCircuit()
			if err != nil {
				service.deps.Notifier.Notify(ctx, domainNotify.SeverityFatal,
					fmt.Sprintf("Post %s went out as %s but could not be marked posted: %v", fresh.ID, out.TweetID, err))
			}
			continue
		}

		stats.Failed++
		n := service.failures.Add(1)
		if err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] could not record failure for post %s", fresh.ID)
		}
		if int(n) >= service.cfg.BreakerThreshold {
			service.deps.Notifier.Notify(ctx, domainNotify.SeverityFatal,
				fmt.Sprintf("Circuit breaker open: %d consecutive publish failures. Last error on post %s: %v", n, fresh.ID, out.Err))
		} else {
			service.deps.Notifier.Notify(ctx, domainNotify.SeverityWarning,
				fmt.Sprintf("Publish failed for post %s (retry %d/%d): %v", fresh.ID, out.RetryCount, service.cfg.MaxRetries, out.Err))
		}
	}
	return stats, nil
}

// weekdayStages is the base funnel stage per civil weekday, Sunday first.
var weekdayStages = [7]string{"S5", "S1", "S2", "S3", "S1", "S2", "S4"}

// emergencyPost fills an empty posting hour with one freshly generated
// post. It never returns generator or publisher failures; those become
// urgent notifications.
func (service *serviceScheduler) emergencyPost(ctx context.Context, now time.Time, posts []domainPost.Post, stats *domainCron.RunStats) error {
	hour := civiltime.Hour(now)
	inWindow := false
	for _, h := range service.cfg.EmergencyHours {
		if h == hour {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return nil
	}

	slotID := civiltime.SlotIDAt(now)
	if holder, taken := slotHolder(posts, slotID, ""); taken {
		logrus.Debugf("[SCHEDULER] slot %s held by %s, no emergency post", slotID, holder.ID)
		return nil
	}
	if postedOn(posts, now) >= service.cfg.DailyCap {
		stats.Skip(domainPost.Skip{SlotID: slotID, Reason: domainPost.SkipDailyCapReached})
		return nil
	}

	logrus.Warnf("[SCHEDULER] nothing queued for slot %s, generating an emergency post", slotID)
	stage := weekdayStages[civiltime.Weekday(now)]
	drafts, err := service.deps.Generator.Generate(ctx, service.generateRequest(ctx, now, posts, 1, stage))
	if err != nil || len(drafts) == 0 {
		if err == nil {
			err = fmt.Errorf("generator returned no drafts")
		}
		stats.Failed++
		service.deps.Notifier.Notify(ctx, domainNotify.SeverityUrgent, fmt.Sprintf("Emergency generation failed for slot %s: %v", slotID, err))
		return nil
	}

	candidate := draftToPost(drafts[0], "")
	candidate.Status = domainPost.StatusPosted
	candidate.ScheduledAt = civiltime.FormatCivil(now)
	candidate.SlotID = slotID
	candidate.DedupeHash = dedupe.Hash(candidate.Draft)
	if candidate.Stage == "" {
		candidate.Stage = stage
	}
	if candidate.ABVersion == "" {
		candidate.ABVersion = abVersions[0]
	}

	if res := service.deps.Engine.Check(candidate, posts); res.Duplicate {
		stats.Skip(domainPost.Skip{SlotID: slotID, Reason: res.Reason, MatchedID: res.MatchedID, Similarity: res.Similarity})
		service.deps.Notifier.Notify(ctx, domainNotify.SeverityUrgent, fmt.Sprintf("Emergency draft for slot %s rejected: %s", slotID, res.Reason))
		return nil
	}

	stats.Processed++
	tweetID, err := service.deps.Publisher.Publish(ctx, candidate.Draft)
	if err != nil {
		stats.Failed++
		logrus.WithError(err).Errorf("[SCHEDULER] emergency publish failed for slot %s", slotID)
		service.deps.Notifier.Notify(ctx, domainNotify.SeverityUrgent, fmt.Sprintf("Emergency post failed for slot %s: %v", slotID, err))
		return nil
	}

	postedAt := service.clock.Now()
	candidate.TweetID = tweetID
	candidate.PostedAt = &postedAt
	if _, err := service.deps.Store.Create(ctx, candidate); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] emergency post %s published but not stored", tweetID)
		service.deps.Notifier.Notify(ctx, domainNotify.SeverityUrgent, fmt.Sprintf("Emergency post %s was published but could not be stored: %v", tweetID, err))
	}
	stats.Success++
	service.ResetCircuit()
	service.deps.Notifier.Notify(ctx, domainNotify.SeverityFatal,
		fmt.Sprintf("緊急自動生成: slot %s had no queued post, published %s (%s)", slotID, tweetID, candidate.Stage))
	return nil
}

// generateRequest assembles generator context from the current store.
func (service *serviceScheduler) generateRequest(ctx context.Context, now time.Time, posts []domainPost.Post, count int, stage string) domainGenerator.Request {
	req := domainGenerator.Request{
		Count:              count,
		TargetStage:        stage,
		Season:             civiltime.Season(now),
		RecentPosts:        recentPosts(posts, recentContextPosts),
		ProhibitedPrefixes: prohibitedPrefixes(posts),
		NGWords:            service.deps.NGWords,
	}
	if service.deps.News != nil {
		req.NewsTopics = service.deps.News.Headlines(ctx)
	}
	return req
}

func recentPosts(posts []domainPost.Post, n int) []domainPost.Post {
	if len(posts) > n {
		return posts[len(posts)-n:]
	}
	return posts
}

func prohibitedPrefixes(posts []domainPost.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		if p.Draft != "" {
			out = append(out, dedupe.Prefix(p.Draft))
		}
	}
	return out
}

func draftToPost(d domainGenerator.Draft, memo string) domainPost.Post {
	hashtags := d.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return domainPost.Post{
		Draft:      d.Draft,
		HasCTA:     d.HasCTA,
		PostType:   d.PostType,
		LPPriority: d.LPPriority,
		Hashtags:   hashtags,
		AIModel:    d.AIModel,
		Stage:      d.Stage,
		ABVersion:  d.ABVersion,
		IsMock:     d.IsMock,
		Memo:       memo,
	}
}
