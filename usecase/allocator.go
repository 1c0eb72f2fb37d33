package usecase

import (
	"context"
	"time"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/sirupsen/logrus"
)

var (
	allocationStages = []string{"S1", "S2", "S3", "S4"}
	abVersions       = []string{"A", "B"}
)

type AllocateRequest struct {
	Drafts        []domainPost.Post
	Existing      []domainPost.Post
	StartDate     time.Time
	Slots         []civiltime.SlotTime
	LookaheadDays int
}

type AllocateResult struct {
	Assigned    []domainPost.Post
	Skipped     []domainPost.Skip
	Unscheduled int
}

// Allocator places drafts onto free hour slots, day by day, and commits
// each one through the committer.
type Allocator struct {
	committer domainPost.ICommitter
	jitter    *Jitter
	clock     civiltime.Clock
}

func NewAllocator(committer domainPost.ICommitter, jitter *Jitter, clock civiltime.Clock) *Allocator {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &Allocator{committer: committer, jitter: jitter, clock: clock}
}

// Allocate walks days from StartDate for at most LookaheadDays. A dedupe
// rejection drops the draft and leaves its slot attempted for this pass; a
// slot_taken rejection marks the slot occupied and retries the same draft
// on the next free slot. Slots whose nominal time has already passed are
// not used.
func (a *Allocator) Allocate(ctx context.Context, req AllocateRequest) (AllocateResult, error) {
	var result AllocateResult
	if len(req.Drafts) == 0 || len(req.Slots) == 0 {
		result.Unscheduled = len(req.Drafts)
		return result, nil
	}

	occupied := make(map[string]bool)
	for _, p := range req.Existing {
		if p.Status.OccupiesSlot() {
			if id := slotOf(p); id != "" {
				occupied[id] = true
			}
		}
	}

	now := a.clock.Now()
	day := civiltime.StartOfDay(req.StartDate)
	next := 0

	for d := 0; d < req.LookaheadDays && next < len(req.Drafts); d++ {
		for _, slot := range req.Slots {
			if next >= len(req.Drafts) {
				break
			}
			nominal := slot.On(day)
			slotID := civiltime.SlotIDAt(nominal)
			if occupied[slotID] || nominal.Before(now) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return result, err
			}

			draft := req.Drafts[next]
			candidate := a.prepare(draft, next, a.jitter.Apply(nominal))

			created, skip, err := a.committer.Commit(ctx, candidate)
			if err != nil {
				return result, err
			}
			if skip == nil {
				occupied[slotID] = true
				result.Assigned = append(result.Assigned, created)
				next++
				continue
			}

			switch skip.Reason {
			case domainPost.SkipSlotTaken:
				occupied[slotID] = true
				logrus.Infof("[ALLOCATOR] lost slot %s to a concurrent writer, moving draft on", slotID)
			default:
				skip.PostID = draft.ID
				result.Skipped = append(result.Skipped, *skip)
				next++
			}
		}
		day = day.AddDate(0, 0, 1)
	}

	if rest := len(req.Drafts) - next; rest > 0 {
		result.Unscheduled = rest
		logrus.Warnf("[ALLOCATOR] %d drafts left unscheduled after %d days", rest, req.LookaheadDays)
	}
	return result, nil
}

func (a *Allocator) prepare(draft domainPost.Post, index int, at time.Time) domainPost.Post {
	p := draft
	p.ID = ""
	p.Status = domainPost.StatusScheduled
	p.ScheduledAt = civiltime.FormatCivil(at)
	p.SlotID = civiltime.SlotIDAt(at)
	p.DedupeHash = dedupe.Hash(p.Draft)
	if p.Stage == "" {
		p.Stage = allocationStages[index%len(allocationStages)]
	}
	if p.ABVersion == "" {
		p.ABVersion = abVersions[index%len(abVersions)]
	}
	return p
}
