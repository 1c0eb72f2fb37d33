package usecase

import (
	"context"
	"fmt"
	"strings"

	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/validations"
	"github.com/sirupsen/logrus"
)

const (
	defaultGenerateCount = 3
	defaultGenerateStage = "S1"
)

type serviceDrafts struct {
	store         domainPost.IPostStore
	generator     domainGenerator.IContentGenerator
	news          domainGenerator.INewsSource
	allocator     *Allocator
	clock         civiltime.Clock
	slots         []civiltime.SlotTime
	lookaheadDays int
	ngWords       []string
}

type DraftsDeps struct {
	Store         domainPost.IPostStore
	Generator     domainGenerator.IContentGenerator
	News          domainGenerator.INewsSource
	Allocator     *Allocator
	Clock         civiltime.Clock
	SlotTimes     []string
	LookaheadDays int
	NGWords       []string
}

func NewDraftsService(deps DraftsDeps) (domainGenerator.IDraftUsecase, error) {
	slots, err := civiltime.ParseSlotTimes(deps.SlotTimes)
	if err != nil {
		return nil, fmt.Errorf("allocate slot times: %w", err)
	}
	if deps.Clock == nil {
		deps.Clock = civiltime.SystemClock{}
	}
	return &serviceDrafts{
		store:         deps.Store,
		generator:     deps.Generator,
		news:          deps.News,
		allocator:     deps.Allocator,
		clock:         deps.Clock,
		slots:         slots,
		lookaheadDays: deps.LookaheadDays,
		ngWords:       deps.NGWords,
	}, nil
}

// GenerateAndSchedule asks the generator for a batch and places it on the
// first free slots from the start date on.
func (service *serviceDrafts) GenerateAndSchedule(ctx context.Context, request domainGenerator.GenerateRequest) (response domainGenerator.GenerateResponse, err error) {
	if err = validations.ValidateGenerate(ctx, request); err != nil {
		return response, err
	}
	if request.Count == 0 {
		request.Count = defaultGenerateCount
	}
	if request.Stage == "" {
		request.Stage = defaultGenerateStage
	}

	now := service.clock.Now()
	start := now
	if strings.TrimSpace(request.StartDate) != "" {
		start, err = civiltime.ParseDate(request.StartDate)
		if err != nil {
			return response, pkgError.ValidationError(err.Error())
		}
	}

	posts, err := service.store.List(ctx)
	if err != nil {
		return response, err
	}

	genReq := domainGenerator.Request{
		Count:              request.Count,
		TargetStage:        request.Stage,
		MemoContent:        request.Memo,
		Season:             civiltime.Season(start),
		RecentPosts:        recentPosts(posts, recentContextPosts),
		ProhibitedPrefixes: prohibitedPrefixes(posts),
		NGWords:            service.ngWords,
	}
	if service.news != nil {
		genReq.NewsTopics = service.news.Headlines(ctx)
	}

	drafts, err := service.generator.Generate(ctx, genReq)
	if err != nil {
		return response, err
	}
	response.Created = []domainPost.Post{}
	response.Skipped = []domainPost.Skip{}
	if len(drafts) == 0 {
		logrus.Warn("[GENERATE] generator returned no drafts")
		return response, nil
	}

	candidates := make([]domainPost.Post, 0, len(drafts))
	for _, d := range drafts {
		candidates = append(candidates, draftToPost(d, request.Memo))
	}

	result, err := service.allocator.Allocate(ctx, AllocateRequest{
		Drafts:        candidates,
		Existing:      posts,
		StartDate:     start,
		Slots:         service.slots,
		LookaheadDays: service.lookaheadDays,
	})
	if err != nil {
		return response, err
	}

	if result.Assigned != nil {
		response.Created = result.Assigned
	}
	if result.Skipped != nil {
		response.Skipped = result.Skipped
	}
	response.Unscheduled = result.Unscheduled
	logrus.Infof("[GENERATE] scheduled %d drafts, %d skipped, %d unscheduled",
		len(response.Created), len(response.Skipped), response.Unscheduled)
	return response, nil
}
