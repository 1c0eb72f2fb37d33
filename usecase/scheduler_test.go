package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainNotify "github.com/AzielCF/az-autopost/domains/notify"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessScheduledPosts_DueWindowBoundaries(t *testing.T) {
	now := jst(2026, 3, 1, 12, 0)
	f := newSchedulerFixture(t, now,
		scheduled("二十五時間前の投稿です", now.Add(-25*time.Hour)),
		scheduled("二十三時間前に予約した記事", now.Add(-23*time.Hour)),
		scheduled("九分後に出る予定の文章", now.Add(9*time.Minute)),
		scheduled("十一分後の別テキスト", now.Add(11*time.Minute)),
	)

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, []string{"二十三時間前に予約した記事", "九分後に出る予定の文章"}, f.publisher.calls)
	assert.Equal(t, domainPost.SkipStale, skipReasons(stats.Skips)["100001"])

	assert.Equal(t, domainPost.StatusScheduled, f.store.get(t, "100001").Status)
	assert.Equal(t, domainPost.StatusPosted, f.store.get(t, "100002").Status)
	assert.Equal(t, "tw-1", f.store.get(t, "100002").TweetID)
	assert.Equal(t, domainPost.StatusPosted, f.store.get(t, "100003").Status)
	assert.Equal(t, domainPost.StatusScheduled, f.store.get(t, "100004").Status)

	p := f.store.get(t, "100003")
	require.NotNil(t, p.PostedAt)
	assert.True(t, now.Equal(*p.PostedAt))
	assert.Equal(t, "", p.LastError)
}

func TestProcessScheduledPosts_CircuitBreaker(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	var posts []domainPost.Post
	for i, text := range sampleTexts[:5] {
		posts = append(posts, scheduled(text, now.Add(-time.Duration(i+1)*time.Hour)))
	}
	f := newSchedulerFixture(t, now, posts...)
	f.publisher.fail = errors.New("503 service unavailable")
	ctx := context.Background()

	stats, err := f.svc.ProcessScheduledPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Failed)
	assert.Equal(t, 5, f.svc.ConsecutiveFailures())
	assert.Equal(t, 4, f.notifier.count(domainNotify.SeverityWarning))
	assert.Equal(t, 1, f.notifier.count(domainNotify.SeverityFatal))
	for _, p := range f.store.byStatus(domainPost.StatusRetry) {
		assert.Equal(t, 1, p.RetryCount)
		assert.Equal(t, "503 service unavailable", p.LastError)
	}
	assert.Len(t, f.store.byStatus(domainPost.StatusRetry), 5)

	stats, err = f.svc.ProcessScheduledPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "circuit_breaker", stats.Reason)
	assert.Equal(t, 5, stats.Skipped)
	for _, sk := range stats.Skips {
		assert.Equal(t, domainPost.SkipCircuitBreaker, sk.Reason)
	}
	assert.Len(t, f.publisher.calls, 5)

	f.svc.ResetCircuit()
	f.publisher.fail = nil
	stats, err = f.svc.ProcessScheduledPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Success)
	assert.Equal(t, 0, f.svc.ConsecutiveFailures())
	assert.Len(t, f.store.byStatus(domainPost.StatusPosted), 5)
}

func TestProcessScheduledPosts_RetryCapMarksFailed(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	p := scheduled("四回失敗している投稿", now.Add(-time.Hour))
	p.Status = domainPost.StatusRetry
	p.RetryCount = 4
	f := newSchedulerFixture(t, now, p)
	f.publisher.fail = errors.New("timeout")

	_, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)

	got := f.store.get(t, "100001")
	assert.Equal(t, domainPost.StatusFailed, got.Status)
	assert.Equal(t, 5, got.RetryCount)
	assert.Equal(t, "timeout", got.LastError)

	// exhausted posts are no longer candidates
	f.publisher.fail = nil
	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Processed)
}

func TestProcessScheduledPosts_SlotGuard(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	f := newSchedulerFixture(t, now,
		posted("もう投稿済みの枠です", jst(2026, 3, 1, 14, 0)),
		scheduled("同じ枠に残った予約", jst(2026, 3, 1, 14, 20)),
		scheduled("十三時ちょうどの投稿", jst(2026, 3, 1, 13, 0)),
		scheduled("十三時半にずれた重複", jst(2026, 3, 1, 13, 30)),
	)

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)

	reasons := skipReasons(stats.Skips)
	assert.Equal(t, domainPost.SkipSlotPosted, reasons["100002"])
	assert.Equal(t, domainPost.SkipBatchDuplicate, reasons["100004"])
	assert.Equal(t, []string{"十三時ちょうどの投稿"}, f.publisher.calls)
}

func TestProcessScheduledPosts_DailyCap(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	var posts []domainPost.Post
	for i := 0; i < 5; i++ {
		posts = append(posts, posted(sampleTexts[i], jst(2026, 3, 1, 9+i, 0)))
	}
	posts = append(posts, scheduled("上限を超える六本目", jst(2026, 3, 1, 14, 50)))
	f := newSchedulerFixture(t, now, posts...)

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domainPost.SkipDailyCapReached, skipReasons(stats.Skips)["100006"])
	assert.Empty(t, f.publisher.calls)
}

func TestProcessScheduledPosts_RecheckBeforePublish(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	f := newSchedulerFixture(t, now, scheduled("直前に止められる投稿", now.Add(-time.Minute)))
	f.store.beforeGet = func(id string) {
		_ = f.store.Update(context.Background(), id, domainPost.Patch{Status: domainPost.Ptr(domainPost.StatusPaused)})
	}

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domainPost.SkipNoLongerDue, skipReasons(stats.Skips)["100001"])
	assert.Empty(t, f.publisher.calls)
}

func TestProcessScheduledPosts_EmergencyPost(t *testing.T) {
	// Monday 08:03 civil time
	now := jst(2026, 3, 2, 8, 3)
	f := newSchedulerFixture(t, now)
	f.svc.failures.Store(2)

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)

	require.Len(t, f.generator.requests, 1)
	assert.Equal(t, 1, f.generator.requests[0].Count)
	assert.Equal(t, "S1", f.generator.requests[0].TargetStage)

	got := f.store.byStatus(domainPost.StatusPosted)
	require.Len(t, got, 1)
	assert.Equal(t, "20260302-08", got[0].SlotID)
	assert.Equal(t, "2026/03/02 08:03:00", got[0].ScheduledAt)
	assert.Equal(t, "tw-1", got[0].TweetID)
	require.NotNil(t, got[0].PostedAt)
	assert.Equal(t, 0, f.svc.ConsecutiveFailures())

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, domainNotify.SeverityFatal, f.notifier.sent[0].Severity)
	assert.Contains(t, f.notifier.sent[0].Message, "緊急自動生成")
}

func TestProcessScheduledPosts_EmergencyDeclined(t *testing.T) {
	t.Run("outside emergency hours", func(t *testing.T) {
		f := newSchedulerFixture(t, jst(2026, 3, 2, 9, 3))
		_, err := f.svc.ProcessScheduledPosts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, f.generator.requests)
	})

	t.Run("slot already held", func(t *testing.T) {
		f := newSchedulerFixture(t, jst(2026, 3, 2, 8, 3), scheduled("八時四十分に予約済み", jst(2026, 3, 2, 8, 40)))
		_, err := f.svc.ProcessScheduledPosts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, f.generator.requests)
		assert.Empty(t, f.publisher.calls)
	})

	t.Run("daily cap", func(t *testing.T) {
		var posts []domainPost.Post
		for i := 0; i < 5; i++ {
			posts = append(posts, posted(sampleTexts[i], jst(2026, 3, 2, 1+i, 0)))
		}
		f := newSchedulerFixture(t, jst(2026, 3, 2, 8, 3), posts...)
		stats, err := f.svc.ProcessScheduledPosts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, f.generator.requests)
		require.Len(t, stats.Skips, 1)
		assert.Equal(t, domainPost.SkipDailyCapReached, stats.Skips[0].Reason)
	})

	t.Run("publish failure is urgent", func(t *testing.T) {
		f := newSchedulerFixture(t, jst(2026, 3, 2, 20, 1))
		f.publisher.fail = errors.New("403 forbidden")
		stats, err := f.svc.ProcessScheduledPosts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed)
		assert.Empty(t, f.store.byStatus(domainPost.StatusPosted))
		assert.Equal(t, 1, f.notifier.count(domainNotify.SeverityUrgent))
	})
}

func TestRunCronSequence_UnknownAction(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 15, 0))
	_, _, err := f.svc.RunCronSequence(context.Background(), domainCron.Action("reboot"))
	assert.Error(t, err)
	assert.Empty(t, f.locker.acquired)
	assert.Empty(t, f.logs.entries)
}

func TestRunCronSequence_Locked(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 15, 0))
	f.locker.held["cron_scheduled_post"] = true

	entry, locked, err := f.svc.RunCronSequence(context.Background(), domainCron.ActionScheduledPost)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, domainCron.LogLocked, entry.Status)
	assert.Empty(t, f.logs.entries)
	assert.Empty(t, f.publisher.calls)
}

func TestRunCronSequence_Success(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	f := newSchedulerFixture(t, now, scheduled("定刻どおりの投稿", now.Add(-time.Minute)))

	entry, locked, err := f.svc.RunCronSequence(context.Background(), domainCron.ActionScheduledPost)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, domainCron.LogSuccess, entry.Status)
	assert.NotEmpty(t, entry.RunID)
	assert.Equal(t, 1, entry.SuccessCount)

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, entry.RunID, f.logs.entries[0].RunID)
	assert.Equal(t, []string{"cron_scheduled_post"}, f.locker.released)
	assert.False(t, f.locker.held["cron_scheduled_post"])
}

func TestRunCronSequence_FatalErrorReleasesLock(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 15, 0))
	f.store.listErr = errors.New("sheet quota exceeded")

	entry, locked, err := f.svc.RunCronSequence(context.Background(), domainCron.ActionScheduledPost)
	require.NoError(t, err)
	assert.False(t, locked)
	assert.Equal(t, domainCron.LogFatalError, entry.Status)
	assert.Contains(t, entry.Error, "sheet quota exceeded")

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, domainCron.LogFatalError, f.logs.entries[0].Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, domainNotify.SeverityFatal, f.notifier.sent[0].Severity)
	assert.Contains(t, f.notifier.sent[0].Message, "Cron Fatal Error: scheduled_post")
	assert.False(t, f.locker.held["cron_scheduled_post"])
}

func TestRunCronSequence_CancelledRunStillNotifies(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	f := newSchedulerFixture(t, now, scheduled("止められた実行の投稿", now.Add(-time.Minute)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	entry, _, err := f.svc.RunCronSequence(ctx, domainCron.ActionScheduledPost)
	require.NoError(t, err)
	assert.Equal(t, domainCron.LogFatalError, entry.Status)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, domainNotify.SeverityFatal, f.notifier.sent[0].Severity)
	assert.NoError(t, f.notifier.sent[0].CtxErr)
	assert.Empty(t, f.publisher.calls)
}

func TestProcessScheduledPosts_BreakerSurvivesRestart(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	var posts []domainPost.Post
	for i, text := range sampleTexts[:3] {
		posts = append(posts, scheduled(text, now.Add(-time.Duration(i+1)*time.Hour)))
	}
	f := newSchedulerFixture(t, now, posts...)
	f.publisher.fail = errors.New("503 service unavailable")

	entry, _, err := f.svc.RunCronSequence(context.Background(), domainCron.ActionScheduledPost)
	require.NoError(t, err)
	assert.Equal(t, 3, entry.ConsecutiveFailures)

	// a new process over the same store and log
	restarted, err := NewSchedulerService(f.svc.deps)
	require.NoError(t, err)
	_, _ = f.store.Create(context.Background(), scheduled(sampleTexts[3], now.Add(-4*time.Hour)))
	_, _ = f.store.Create(context.Background(), scheduled(sampleTexts[4], now.Add(-5*time.Hour)))

	stats, err := restarted.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 3, skipCount(stats.Skips, domainPost.SkipCircuitBreaker))
	assert.Equal(t, 5, restarted.ConsecutiveFailures())
	assert.Equal(t, 1, f.notifier.count(domainNotify.SeverityFatal))
}

func TestProcessScheduledPosts_ResetOverridesSavedBreaker(t *testing.T) {
	now := jst(2026, 3, 1, 15, 0)
	f := newSchedulerFixture(t, now, scheduled("再開後の投稿", now.Add(-time.Minute)))
	saved := []domainCron.LogEntry{{Action: domainCron.ActionScheduledPost, Status: domainCron.LogSuccess, ConsecutiveFailures: 5}}
	f.logs.entries = saved

	stats, err := f.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "circuit_breaker", stats.Reason)

	g := newSchedulerFixture(t, now, scheduled("再開後の投稿", now.Add(-time.Minute)))
	g.logs.entries = saved
	g.svc.ResetCircuit()
	stats, err = g.svc.ProcessScheduledPosts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Success)
}

func TestRunCronSequence_PanicIsFatal(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 6, 0))
	f.generator.panicMsg = "model exploded"

	entry, _, err := f.svc.RunCronSequence(context.Background(), domainCron.ActionGenerateDrafts)
	require.NoError(t, err)
	assert.Equal(t, domainCron.LogFatalError, entry.Status)
	assert.Contains(t, entry.Error, "model exploded")
	assert.False(t, f.locker.held["cron_generate_drafts"])
}

func TestGenerateDailyDrafts_FillsThreeDays(t *testing.T) {
	// Sunday 06:00, before every slot
	f := newSchedulerFixture(t, jst(2026, 3, 1, 6, 0))

	stats, err := f.svc.GenerateDailyDrafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, stats.Success)

	got := f.store.byStatus(domainPost.StatusScheduled)
	require.Len(t, got, 9)
	assert.Equal(t, []string{
		"20260301-08", "20260301-12", "20260301-20",
		"20260302-08", "20260302-12", "20260302-20",
		"20260303-08", "20260303-12", "20260303-20",
	}, slotIDs(got))
	for _, p := range got {
		assert.Equal(t, p.SlotID, civiltime.DeriveSlotID(p.ScheduledAt))
	}
	assert.Equal(t, "S1", got[0].Stage)
	assert.Equal(t, "S2", got[1].Stage)
	assert.Equal(t, "A", got[0].ABVersion)
	assert.Equal(t, "B", got[1].ABVersion)

	require.Len(t, f.generator.requests, 3)
	assert.Equal(t, 3, f.generator.requests[0].Count)
	// Sunday, Monday, Tuesday
	assert.Equal(t, "S5", f.generator.requests[0].TargetStage)
	assert.Equal(t, "S1", f.generator.requests[1].TargetStage)
	assert.Equal(t, "S2", f.generator.requests[2].TargetStage)
	assert.Equal(t, 3, f.notifier.count(domainNotify.SeverityInfo))
	assert.Equal(t, 0, f.notifier.count(domainNotify.SeverityWarning))
}

func TestGenerateDailyDrafts_OnlyMissingFutureSlots(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 13, 0), scheduled("朝に予約済みの投稿", jst(2026, 3, 1, 8, 10)))

	stats, err := f.svc.GenerateDailyDrafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Success)

	require.NotEmpty(t, f.generator.requests)
	assert.Equal(t, 1, f.generator.requests[0].Count)

	var today []string
	for _, p := range f.store.byStatus(domainPost.StatusScheduled) {
		if civiltime.CivilDate(civiltime.ParseCivil(p.ScheduledAt)) == "2026/03/01" {
			today = append(today, p.SlotID)
		}
	}
	assert.ElementsMatch(t, []string{"20260301-08", "20260301-20"}, today)
}

func TestGenerateDailyDrafts_LowStockWarning(t *testing.T) {
	f := newSchedulerFixture(t, jst(2026, 3, 1, 6, 0))
	f.generator.err = errors.New("quota")

	stats, err := f.svc.GenerateDailyDrafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 1, f.notifier.count(domainNotify.SeverityWarning))
}

func TestCheckMetrics_Snapshots(t *testing.T) {
	now := jst(2026, 3, 2, 12, 0)
	withBoth := posted("両方取得済みの投稿", now.Add(-30*time.Hour))
	withBoth.Metrics1h = &domainPost.Engagement{Like: 1}
	withBoth.Metrics24h = &domainPost.Engagement{Like: 9}
	with1h := posted("一時間分だけある投稿", now.Add(-25*time.Hour))
	with1h.Metrics1h = &domainPost.Engagement{Like: 2}

	f := newSchedulerFixture(t, now,
		posted("二時間前に出した投稿", now.Add(-2*time.Hour)),
		with1h,
		posted("三十分前の投稿", now.Add(-30*time.Minute)),
		withBoth,
	)
	f.publisher.metrics = &domainPost.Engagement{Like: 3, Retweet: 1}

	stats, err := f.svc.CheckMetrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Success)

	first := f.store.get(t, "100001")
	require.NotNil(t, first.Metrics1h)
	assert.Equal(t, 3, first.Metrics1h.Like)
	assert.Nil(t, first.Metrics24h)
	require.NotNil(t, first.MetricsCheckedAt)

	second := f.store.get(t, "100002")
	require.NotNil(t, second.Metrics24h)
	assert.Equal(t, 1, second.Metrics24h.Retweet)
	assert.Equal(t, 2, second.Metrics1h.Like)

	assert.Nil(t, f.store.get(t, "100003").Metrics1h)
	assert.Equal(t, 9, f.store.get(t, "100004").Metrics24h.Like)
}
