package post

import (
	"context"
	"time"
)

type Status string

// PostIDPlaceholder in a draft is replaced by the assigned id after create.
const PostIDPlaceholder = "[post_id]"

const (
	StatusDraftAI   Status = "draft_ai"
	StatusScheduled Status = "scheduled"
	StatusRetry     Status = "retry"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
	StatusPaused    Status = "paused"
	StatusDeleted   Status = "deleted"
	StatusTest      Status = "test"
)

// Terminal reports whether no further publishing transition is possible.
func (s Status) Terminal() bool {
	return s == StatusPosted || s == StatusFailed || s == StatusDeleted
}

// OccupiesSlot reports whether a post in this status holds its slot_id.
func (s Status) OccupiesSlot() bool {
	return s == StatusScheduled || s == StatusPosted || s == StatusRetry
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraftAI, StatusScheduled, StatusRetry, StatusPosted, StatusFailed, StatusPaused, StatusDeleted, StatusTest:
		return true
	}
	return false
}

// Engagement is one metrics snapshot fetched from the platform.
type Engagement struct {
	Like    int `json:"like"`
	Retweet int `json:"retweet"`
	Reply   int `json:"reply"`
}

type Post struct {
	ID          string   `json:"id"`
	Status      Status   `json:"status"`
	Draft       string   `json:"draft"`
	ScheduledAt string   `json:"scheduled_at"`
	SlotID      string   `json:"slot_id"`
	DedupeHash  string   `json:"dedupe_hash"`
	RetryCount  int      `json:"retry_count"`
	LastError   string   `json:"last_error,omitempty"`
	TweetID     string   `json:"tweet_id,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	ABVersion   string   `json:"ab_version,omitempty"`
	PostType    string   `json:"post_type,omitempty"`
	HasCTA      bool     `json:"has_cta"`
	LPPriority  string   `json:"lp_priority,omitempty"`
	Hashtags    []string `json:"hashtags"`
	AIModel     string   `json:"ai_model,omitempty"`
	IsMock      bool     `json:"is_mock"`
	Memo        string   `json:"memo,omitempty"`

	ClickCount int     `json:"click_count"`
	CVCount    int     `json:"cv_count"`
	Revenue    float64 `json:"revenue"`

	Metrics1h        *Engagement `json:"metrics_1h,omitempty"`
	Metrics24h       *Engagement `json:"metrics_24h,omitempty"`
	MetricsCheckedAt *time.Time  `json:"metrics_checked_at,omitempty"`

	PostedAt  *time.Time `json:"posted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Patch is a partial update. Nil fields are left untouched, so metric and
// counter fields survive scheduling updates.
type Patch struct {
	Status           *Status
	Draft            *string
	ScheduledAt      *string
	SlotID           *string
	DedupeHash       *string
	RetryCount       *int
	LastError        *string
	TweetID          *string
	PostedAt         *time.Time
	Stage            *string
	ABVersion        *string
	Hashtags         *[]string
	ClickCount       *int
	CVCount          *int
	Revenue          *float64
	Metrics1h        *Engagement
	Metrics24h       *Engagement
	MetricsCheckedAt *time.Time
}

// Apply merges the patch into p. It does not touch UpdatedAt.
func (patch Patch) Apply(p *Post) {
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Draft != nil {
		p.Draft = *patch.Draft
	}
	if patch.ScheduledAt != nil {
		p.ScheduledAt = *patch.ScheduledAt
	}
	if patch.SlotID != nil {
		p.SlotID = *patch.SlotID
	}
	if patch.DedupeHash != nil {
		p.DedupeHash = *patch.DedupeHash
	}
	if patch.RetryCount != nil {
		p.RetryCount = *patch.RetryCount
	}
	if patch.LastError != nil {
		p.LastError = *patch.LastError
	}
	if patch.TweetID != nil {
		p.TweetID = *patch.TweetID
	}
	if patch.PostedAt != nil {
		t := *patch.PostedAt
		p.PostedAt = &t
	}
	if patch.Stage != nil {
		p.Stage = *patch.Stage
	}
	if patch.ABVersion != nil {
		p.ABVersion = *patch.ABVersion
	}
	if patch.Hashtags != nil {
		p.Hashtags = append([]string(nil), (*patch.Hashtags)...)
	}
	if patch.ClickCount != nil {
		p.ClickCount = *patch.ClickCount
	}
	if patch.CVCount != nil {
		p.CVCount = *patch.CVCount
	}
	if patch.Revenue != nil {
		p.Revenue = *patch.Revenue
	}
	if patch.Metrics1h != nil {
		m := *patch.Metrics1h
		p.Metrics1h = &m
	}
	if patch.Metrics24h != nil {
		m := *patch.Metrics24h
		p.Metrics24h = &m
	}
	if patch.MetricsCheckedAt != nil {
		t := *patch.MetricsCheckedAt
		p.MetricsCheckedAt = &t
	}
}

// FullPatch carries every mutable field of p, for replaying a post onto
// another store.
func (p Post) FullPatch() Patch {
	hashtags := append([]string{}, p.Hashtags...)
	patch := Patch{
		Status:      Ptr(p.Status),
		Draft:       Ptr(p.Draft),
		ScheduledAt: Ptr(p.ScheduledAt),
		SlotID:      Ptr(p.SlotID),
		DedupeHash:  Ptr(p.DedupeHash),
		RetryCount:  Ptr(p.RetryCount),
		LastError:   Ptr(p.LastError),
		TweetID:     Ptr(p.TweetID),
		Stage:       Ptr(p.Stage),
		ABVersion:   Ptr(p.ABVersion),
		Hashtags:    &hashtags,
		ClickCount:  Ptr(p.ClickCount),
		CVCount:     Ptr(p.CVCount),
		Revenue:     Ptr(p.Revenue),
	}
	if p.PostedAt != nil {
		patch.PostedAt = Ptr(*p.PostedAt)
	}
	if p.Metrics1h != nil {
		patch.Metrics1h = Ptr(*p.Metrics1h)
	}
	if p.Metrics24h != nil {
		patch.Metrics24h = Ptr(*p.Metrics24h)
	}
	if p.MetricsCheckedAt != nil {
		patch.MetricsCheckedAt = Ptr(*p.MetricsCheckedAt)
	}
	return patch
}

// Ptr is a helper for building patches.
func Ptr[T any](v T) *T { return &v }

// IPostStore is the content store contract. List returns posts in creation
// order. Update on an unknown id is a no-op. FindByID returns a
// pkgError.NotFoundError when the id does not exist.
type IPostStore interface {
	List(ctx context.Context) ([]Post, error)
	Create(ctx context.Context, p Post) (Post, error)
	Update(ctx context.Context, id string, patch Patch) error
	FindByID(ctx context.Context, id string) (Post, error)
}
