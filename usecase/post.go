package usecase

import (
	"context"
	"fmt"
	"sort"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainPublisher "github.com/AzielCF/az-autopost/domains/publisher"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/validations"
	"github.com/sirupsen/logrus"
)

type servicePost struct {
	store      domainPost.IPostStore
	publisher  domainPublisher.IPublisher
	engine     *dedupe.Engine
	clock      civiltime.Clock
	maxRetries int
}

func NewPostService(store domainPost.IPostStore, publisher domainPublisher.IPublisher, engine *dedupe.Engine, clock civiltime.Clock, maxRetries int) domainPost.IPostUsecase {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &servicePost{
		store:      store,
		publisher:  publisher,
		engine:     engine,
		clock:      clock,
		maxRetries: maxRetries,
	}
}

// List returns posts newest scheduled first. Deleted posts are hidden
// unless asked for by status.
func (service *servicePost) List(ctx context.Context, request domainPost.ListRequest) ([]domainPost.Post, error) {
	if err := validations.ValidateList(ctx, request); err != nil {
		return nil, err
	}
	posts, err := service.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domainPost.Post, 0, len(posts))
	for _, p := range posts {
		if request.Status != "" {
			if p.Status != request.Status {
				continue
			}
		} else if p.Status == domainPost.StatusDeleted {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return civiltime.ParseCivil(out[i].ScheduledAt).After(civiltime.ParseCivil(out[j].ScheduledAt))
	})
	if request.Limit > 0 && len(out) > request.Limit {
		out = out[:request.Limit]
	}
	return out, nil
}

func (service *servicePost) Get(ctx context.Context, id string) (domainPost.Post, error) {
	return service.store.FindByID(ctx, id)
}

func (service *servicePost) Manage(ctx context.Context, request domainPost.ManageRequest) (response domainPost.ManageResponse, err error) {
	if err = validations.ValidateManage(ctx, request); err != nil {
		return response, err
	}

	p, err := service.store.FindByID(ctx, request.ID)
	if err != nil {
		return response, err
	}

	switch request.Action {
	case domainPost.ActionDelete:
		err = service.store.Update(ctx, p.ID, domainPost.Patch{Status: domainPost.Ptr(domainPost.StatusDeleted)})
		response.Message = "post deleted"
	case domainPost.ActionForcePost:
		response.Message, err = service.forcePost(ctx, p)
	case domainPost.ActionToggleStatus:
		response.Message, err = service.toggle(ctx, p)
	case domainPost.ActionEdit:
		response.Message, err = service.edit(ctx, p, request.Draft)
	}
	if err != nil {
		return response, err
	}

	logrus.Infof("[POSTS] %s on post %s: %s", request.Action, p.ID, response.Message)
	response.Post, err = service.store.FindByID(ctx, p.ID)
	return response, err
}

// forcePost publishes immediately regardless of the schedule.
func (service *servicePost) forcePost(ctx context.Context, p domainPost.Post) (string, error) {
	if p.Status == domainPost.StatusPosted || p.Status == domainPost.StatusDeleted {
		return "", pkgError.ConflictError(fmt.Sprintf("post %s is %s", p.ID, p.Status))
	}
	out, err := publishAndRecord(ctx, service.store, service.publisher, p, service.clock.Now(), service.maxRetries)
	if err != nil {
		return "", err
	}
	if out.Err != nil {
		return "", pkgError.InternalServerError(fmt.Sprintf("publish failed: %v", out.Err))
	}
	return "published as " + out.TweetID, nil
}

// toggle pauses a queued post or puts a paused one back on its slot.
func (service *servicePost) toggle(ctx context.Context, p domainPost.Post) (string, error) {
	switch p.Status {
	case domainPost.StatusScheduled, domainPost.StatusRetry:
		return "post paused", service.store.Update(ctx, p.ID, domainPost.Patch{Status: domainPost.Ptr(domainPost.StatusPaused)})
	case domainPost.StatusPaused, domainPost.StatusDraftAI:
		if p.ScheduledAt == "" {
			return "", pkgError.ConflictError(fmt.Sprintf("post %s has no scheduled_at and cannot be scheduled", p.ID))
		}
		posts, err := service.store.List(ctx)
		if err != nil {
			return "", err
		}
		if holder, taken := slotHolder(posts, slotOf(p), p.ID); taken {
			return "", pkgError.ConflictError(fmt.Sprintf("slot %s is held by post %s", slotOf(p), holder.ID))
		}
		return "post scheduled", service.store.Update(ctx, p.ID, domainPost.Patch{Status: domainPost.Ptr(domainPost.StatusScheduled)})
	default:
		return "", pkgError.ConflictError(fmt.Sprintf("post %s is %s and cannot be toggled", p.ID, p.Status))
	}
}

// edit replaces the draft text. The new text goes through the same dedupe
// check as a fresh draft.
func (service *servicePost) edit(ctx context.Context, p domainPost.Post, draft string) (string, error) {
	if p.Status.Terminal() {
		return "", pkgError.ConflictError(fmt.Sprintf("post %s is %s and cannot be edited", p.ID, p.Status))
	}
	posts, err := service.store.List(ctx)
	if err != nil {
		return "", err
	}
	candidate := p
	candidate.Draft = draft
	candidate.DedupeHash = dedupe.Hash(draft)
	if res := service.engine.Check(candidate, posts); res.Duplicate {
		return "", pkgError.ConflictError(fmt.Sprintf("edited text is a duplicate of post %s (%s)", res.MatchedID, res.Reason))
	}
	return "draft updated", service.store.Update(ctx, p.ID, domainPost.Patch{
		Draft:      &candidate.Draft,
		DedupeHash: &candidate.DedupeHash,
	})
}
