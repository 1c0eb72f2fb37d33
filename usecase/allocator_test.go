package usecase

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJitter_StaysInsideNominalHour(t *testing.T) {
	j := NewJitter(30*time.Minute, rand.New(rand.NewPCG(7, 7)))

	onHour := jst(2026, 3, 1, 8, 0)
	late := jst(2026, 3, 1, 8, 45)
	for i := 0; i < 500; i++ {
		got := j.Apply(onHour)
		assert.False(t, got.Before(onHour))
		assert.False(t, got.After(onHour.Add(30*time.Minute)))
		assert.Equal(t, "20260301-08", civiltime.SlotIDAt(got))

		got = j.Apply(late)
		assert.False(t, got.Before(late.Add(-30*time.Minute)))
		assert.Equal(t, "20260301-08", civiltime.SlotIDAt(got))
	}
}

func TestJitter_ZeroWindow(t *testing.T) {
	j := NewJitter(0, nil)
	at := jst(2026, 3, 1, 12, 0)
	assert.True(t, at.Equal(j.Apply(at)))
}

func newTestCommitter(posts ...domainPost.Post) (*memStore, domainPost.ICommitter) {
	store := newMemStore(posts...)
	return store, NewCommitterService(store, dedupe.NewEngine(dedupe.DefaultThreshold, dedupe.DefaultWindow))
}

func TestCommitter_ReplacesPostIDPlaceholder(t *testing.T) {
	store, committer := newTestCommitter()
	p := scheduled("詳しくはこちら https://example.com/go?pid=[post_id]", jst(2026, 3, 1, 8, 0))

	created, skip, err := committer.Commit(context.Background(), p)
	require.NoError(t, err)
	require.Nil(t, skip)
	assert.Equal(t, "詳しくはこちら https://example.com/go?pid=100001", created.Draft)
	assert.Equal(t, created.Draft, store.get(t, "100001").Draft)
}

func TestCommitter_RejectsTakenSlotAndDuplicates(t *testing.T) {
	_, committer := newTestCommitter(scheduled("先に入っていた投稿", jst(2026, 3, 1, 8, 5)))
	ctx := context.Background()

	_, skip, err := committer.Commit(ctx, scheduled("同じ枠を狙う別の文章", jst(2026, 3, 1, 8, 40)))
	require.NoError(t, err)
	require.NotNil(t, skip)
	assert.Equal(t, domainPost.SkipSlotTaken, skip.Reason)
	assert.Equal(t, "100001", skip.MatchedID)

	_, skip, err = committer.Commit(ctx, scheduled("先に入っていた投稿", jst(2026, 3, 2, 8, 0)))
	require.NoError(t, err)
	require.NotNil(t, skip)
	assert.Equal(t, domainPost.SkipDuplicateHash, skip.Reason)

	// a draft does not hold a slot
	draft := scheduled("枠を持たない下書き", jst(2026, 3, 1, 8, 10))
	draft.Status = domainPost.StatusDraftAI
	_, skip, err = committer.Commit(ctx, draft)
	require.NoError(t, err)
	assert.Nil(t, skip)
}

// scriptedCommitter returns a fixed sequence of skips before delegating.
type scriptedCommitter struct {
	inner domainPost.ICommitter
	skips []*domainPost.Skip
	seen  []string
}

func (c *scriptedCommitter) Commit(ctx context.Context, p domainPost.Post) (domainPost.Post, *domainPost.Skip, error) {
	c.seen = append(c.seen, p.SlotID)
	if len(c.skips) > 0 {
		sk := c.skips[0]
		c.skips = c.skips[1:]
		if sk != nil {
			return domainPost.Post{}, sk, nil
		}
	}
	return c.inner.Commit(ctx, p)
}

func TestAllocator_AssignsEarliestFreeSlots(t *testing.T) {
	clock := civiltime.NewFixedClock(jst(2026, 2, 28, 10, 0))
	_, committer := newTestCommitter()
	alloc := NewAllocator(committer, NewJitter(30*time.Minute, rand.New(rand.NewPCG(1, 1))), clock)
	slots, err := civiltime.ParseSlotTimes([]string{"08:00", "12:00"})
	require.NoError(t, err)

	start, _ := civiltime.ParseDate("2026/03/01")
	res, err := alloc.Allocate(context.Background(), AllocateRequest{
		Drafts:        []domainPost.Post{{Draft: sampleTexts[0]}, {Draft: sampleTexts[1]}, {Draft: sampleTexts[2]}},
		StartDate:     start,
		Slots:         slots,
		LookaheadDays: 90,
	})
	require.NoError(t, err)
	require.Len(t, res.Assigned, 3)
	assert.Equal(t, []string{"20260301-08", "20260301-12", "20260302-08"}, slotIDs(res.Assigned))

	nominal := []time.Time{jst(2026, 3, 1, 8, 0), jst(2026, 3, 1, 12, 0), jst(2026, 3, 2, 8, 0)}
	for i, p := range res.Assigned {
		at := civiltime.ParseCivil(p.ScheduledAt)
		assert.False(t, at.Before(nominal[i]), p.ScheduledAt)
		assert.False(t, at.After(nominal[i].Add(30*time.Minute)), p.ScheduledAt)
		assert.Equal(t, domainPost.StatusScheduled, p.Status)
	}
	assert.Equal(t, "S1", res.Assigned[0].Stage)
	assert.Equal(t, "S3", res.Assigned[2].Stage)
	assert.Equal(t, "B", res.Assigned[1].ABVersion)
}

func TestAllocator_SkipsOccupiedAndPastSlots(t *testing.T) {
	existing := scheduled("先約のある朝の枠", jst(2026, 3, 2, 8, 15))
	clock := civiltime.NewFixedClock(jst(2026, 3, 1, 9, 0))
	_, committer := newTestCommitter(existing)
	alloc := NewAllocator(committer, NewJitter(0, nil), clock)
	slots, _ := civiltime.ParseSlotTimes([]string{"08:00", "12:00"})

	res, err := alloc.Allocate(context.Background(), AllocateRequest{
		Drafts:        []domainPost.Post{{Draft: sampleTexts[3]}, {Draft: sampleTexts[4]}},
		Existing:      []domainPost.Post{existing},
		StartDate:     jst(2026, 3, 1, 0, 0),
		Slots:         slots,
		LookaheadDays: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"20260301-12", "20260302-12"}, slotIDs(res.Assigned))
}

func TestAllocator_RejectionHandling(t *testing.T) {
	clock := civiltime.NewFixedClock(jst(2026, 2, 28, 10, 0))
	_, inner := newTestCommitter()
	committer := &scriptedCommitter{
		inner: inner,
		skips: []*domainPost.Skip{
			{Reason: domainPost.SkipDuplicateHash, MatchedID: "99"},
			{Reason: domainPost.SkipSlotTaken},
		},
	}
	alloc := NewAllocator(committer, NewJitter(0, nil), clock)
	slots, _ := civiltime.ParseSlotTimes([]string{"08:00", "12:00"})

	res, err := alloc.Allocate(context.Background(), AllocateRequest{
		Drafts:        []domainPost.Post{{ID: "d1", Draft: sampleTexts[5]}, {ID: "d2", Draft: sampleTexts[6]}},
		StartDate:     jst(2026, 3, 1, 0, 0),
		Slots:         slots,
		LookaheadDays: 90,
	})
	require.NoError(t, err)

	// d1 is dropped at 08; d2 loses 12 to a concurrent writer and lands on the next day
	assert.Equal(t, []string{"20260301-08", "20260301-12", "20260302-08"}, committer.seen)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "d1", res.Skipped[0].PostID)
	assert.Equal(t, []string{"20260302-08"}, slotIDs(res.Assigned))
	assert.Equal(t, 0, res.Unscheduled)
}

func TestAllocator_LookaheadExhausted(t *testing.T) {
	clock := civiltime.NewFixedClock(jst(2026, 2, 28, 10, 0))
	_, committer := newTestCommitter()
	alloc := NewAllocator(committer, NewJitter(0, nil), clock)
	slots, _ := civiltime.ParseSlotTimes([]string{"08:00"})

	res, err := alloc.Allocate(context.Background(), AllocateRequest{
		Drafts:        []domainPost.Post{{Draft: sampleTexts[0]}, {Draft: sampleTexts[1]}, {Draft: sampleTexts[2]}},
		StartDate:     jst(2026, 3, 1, 0, 0),
		Slots:         slots,
		LookaheadDays: 2,
	})
	require.NoError(t, err)
	assert.Len(t, res.Assigned, 2)
	assert.Equal(t, 1, res.Unscheduled)
}

func newTestDrafts(t *testing.T, now time.Time, posts ...domainPost.Post) (domainGenerator.IDraftUsecase, *memStore, *fakeGenerator) {
	t.Helper()
	store := newMemStore(posts...)
	gen := &fakeGenerator{}
	clock := civiltime.NewFixedClock(now)
	committer := NewCommitterService(store, dedupe.NewEngine(dedupe.DefaultThreshold, dedupe.DefaultWindow))
	svc, err := NewDraftsService(DraftsDeps{
		Store:         store,
		Generator:     gen,
		Allocator:     NewAllocator(committer, NewJitter(30*time.Minute, rand.New(rand.NewPCG(3, 4))), clock),
		Clock:         clock,
		SlotTimes:     []string{"08:00", "12:00"},
		LookaheadDays: 90,
	})
	require.NoError(t, err)
	return svc, store, gen
}

func TestGenerateAndSchedule_EndToEnd(t *testing.T) {
	svc, store, gen := newTestDrafts(t, jst(2026, 2, 28, 10, 0), posted("過去に投稿した空気の話", jst(2026, 2, 27, 8, 0)))

	res, err := svc.GenerateAndSchedule(context.Background(), domainGenerator.GenerateRequest{
		Memo:      "花粉",
		StartDate: "2026/03/01",
	})
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, 3, req.Count)
	assert.Equal(t, "S1", req.TargetStage)
	assert.Equal(t, "花粉", req.MemoContent)
	assert.Equal(t, "Spring", req.Season)
	assert.Equal(t, []string{"過去に投稿した空気の"}, req.ProhibitedPrefixes)

	assert.Equal(t, []string{"20260301-08", "20260301-12", "20260302-08"}, slotIDs(res.Created))
	assert.Empty(t, res.Skipped)
	assert.Len(t, store.byStatus(domainPost.StatusScheduled), 3)
	for _, p := range res.Created {
		assert.Equal(t, "花粉", p.Memo)
	}
}

func TestGenerateAndSchedule_Validation(t *testing.T) {
	svc, _, gen := newTestDrafts(t, jst(2026, 2, 28, 10, 0))

	_, err := svc.GenerateAndSchedule(context.Background(), domainGenerator.GenerateRequest{Stage: "S9"})
	assert.IsType(t, pkgError.ValidationError(""), err)
	assert.Empty(t, gen.requests)
}
