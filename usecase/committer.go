package usecase

import (
	"context"
	"strings"
	"sync"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	"github.com/sirupsen/logrus"
)

const PostIDPlaceholder = domainPost.PostIDPlaceholder

type serviceCommitter struct {
	store  domainPost.IPostStore
	engine *dedupe.Engine
	mu     sync.Mutex
}

func NewCommitterService(store domainPost.IPostStore, engine *dedupe.Engine) domainPost.ICommitter {
	return &serviceCommitter{store: store, engine: engine}
}

// Commit re-reads the store and re-checks dedupe and slot occupancy right
// before the write. The snapshot a caller planned with may be stale.
func (service *serviceCommitter) Commit(ctx context.Context, p domainPost.Post) (domainPost.Post, *domainPost.Skip, error) {
	service.mu.Lock()
	defer service.mu.Unlock()

	posts, err := service.store.List(ctx)
	if err != nil {
		return domainPost.Post{}, nil, err
	}

	p.DedupeHash = dedupe.Hash(p.Draft)
	if p.ScheduledAt != "" {
		p.SlotID = civiltime.DeriveSlotID(p.ScheduledAt)
	}

	if res := service.engine.Check(p, posts); res.Duplicate {
		logrus.WithFields(logrus.Fields{
			"reason":     res.Reason,
			"matched_id": res.MatchedID,
			"similarity": res.Similarity,
		}).Info("[ALLOCATOR] draft rejected as duplicate")
		return domainPost.Post{}, &domainPost.Skip{
			SlotID:     p.SlotID,
			Reason:     res.Reason,
			MatchedID:  res.MatchedID,
			Similarity: res.Similarity,
		}, nil
	}

	if p.Status.OccupiesSlot() && p.SlotID != "" {
		if holder, taken := slotHolder(posts, p.SlotID, ""); taken {
			logrus.Infof("[ALLOCATOR] slot %s already held by %s", p.SlotID, holder.ID)
			return domainPost.Post{}, &domainPost.Skip{SlotID: p.SlotID, Reason: domainPost.SkipSlotTaken, MatchedID: holder.ID}, nil
		}
	}

	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	created, err := service.store.Create(ctx, p)
	if err != nil {
		return domainPost.Post{}, nil, err
	}

	if strings.Contains(created.Draft, PostIDPlaceholder) {
		draft := strings.ReplaceAll(created.Draft, PostIDPlaceholder, created.ID)
		if err := service.store.Update(ctx, created.ID, domainPost.Patch{Draft: &draft}); err != nil {
			return created, nil, err
		}
		created.Draft = draft
	}
	return created, nil, nil
}

// slotOf returns the stored slot id, deriving it for rows written without one.
func slotOf(p domainPost.Post) string {
	if p.SlotID != "" {
		return p.SlotID
	}
	return civiltime.DeriveSlotID(p.ScheduledAt)
}

// slotHolder finds a post in an occupying status on slotID, ignoring exceptID.
func slotHolder(posts []domainPost.Post, slotID, exceptID string) (domainPost.Post, bool) {
	for _, q := range posts {
		if q.ID == exceptID && exceptID != "" {
			continue
		}
		if q.Status.OccupiesSlot() && slotOf(q) == slotID {
			return q, true
		}
	}
	return domainPost.Post{}, false
}
