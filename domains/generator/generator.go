package generator

import (
	"context"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
)

// Request is the context handed to a content generator.
type Request struct {
	Count              int
	TargetStage        string
	MemoContent        string
	Season             string
	RecentPosts        []domainPost.Post
	ProhibitedPrefixes []string
	NewsTopics         []string
	NGWords            []string
}

// Draft is one candidate produced by a generator.
type Draft struct {
	Draft      string   `json:"draft"`
	HasCTA     bool     `json:"has_cta"`
	PostType   string   `json:"post_type"`
	LPPriority string   `json:"lp_priority"`
	Hashtags   []string `json:"hashtags"`
	AIModel    string   `json:"ai_model"`
	Stage      string   `json:"stage,omitempty"`
	ABVersion  string   `json:"ab_version,omitempty"`
	IsMock     bool     `json:"is_mock"`
}

// IContentGenerator returns up to Count drafts. Fewer, or none, is not an error.
type IContentGenerator interface {
	Generate(ctx context.Context, request Request) ([]Draft, error)
}

// INewsSource supplies recent headlines used as trend context.
type INewsSource interface {
	Headlines(ctx context.Context) []string
}

type GenerateRequest struct {
	Count     int    `json:"count" form:"count"`
	Stage     string `json:"stage" form:"stage"`
	Memo      string `json:"memo" form:"memo"`
	StartDate string `json:"start_date" form:"start_date"`
}

type GenerateResponse struct {
	Created     []domainPost.Post `json:"created"`
	Skipped     []domainPost.Skip `json:"skipped"`
	Unscheduled int               `json:"unscheduled"`
}

// IDraftUsecase generates drafts and places them on free slots.
type IDraftUsecase interface {
	GenerateAndSchedule(ctx context.Context, request GenerateRequest) (GenerateResponse, error)
}
