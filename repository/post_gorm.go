package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"gorm.io/gorm"
)

// postModel keeps gorm tags out of the domain type. Hashtags are stored as
// a JSON text column.
type postModel struct {
	ID          string `gorm:"primaryKey"`
	Seq         int64  `gorm:"index"`
	Status      string `gorm:"index;not null"`
	Draft       string `gorm:"type:text"`
	ScheduledAt string `gorm:"column:scheduled_at;index"`
	SlotID      string `gorm:"column:slot_id;index"`
	DedupeHash  string `gorm:"column:dedupe_hash;index"`
	RetryCount  int    `gorm:"column:retry_count;not null;default:0"`
	LastError   string `gorm:"column:last_error"`
	TweetID     string `gorm:"column:tweet_id"`
	Stage       string
	ABVersion   string `gorm:"column:ab_version"`
	PostType    string `gorm:"column:post_type"`
	HasCTA      bool   `gorm:"column:has_cta"`
	LPPriority  string `gorm:"column:lp_priority"`
	Hashtags    string `gorm:"type:text"`
	AIModel     string `gorm:"column:ai_model"`
	IsMock      bool   `gorm:"column:is_mock"`
	Memo        string `gorm:"type:text"`
	ClickCount  int    `gorm:"column:click_count;not null;default:0"`
	CVCount     int    `gorm:"column:cv_count;not null;default:0"`
	Revenue     float64
	SyncPending string `gorm:"column:sync_pending;index;not null;default:''"`

	Metrics1hLike     *int `gorm:"column:metrics_1h_like"`
	Metrics1hRetweet  *int `gorm:"column:metrics_1h_rt"`
	Metrics1hReply    *int `gorm:"column:metrics_1h_reply"`
	Metrics24hLike    *int `gorm:"column:metrics_24h_like"`
	Metrics24hRetweet *int `gorm:"column:metrics_24h_rt"`
	Metrics24hReply   *int `gorm:"column:metrics_24h_reply"`
	MetricsCheckedAt  *time.Time

	PostedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (postModel) TableName() string {
	return "posts"
}

// GormRepository implements Backend over SQLite (local) or Postgres (remote).
type GormRepository struct {
	db    *gorm.DB
	clock civiltime.Clock
	name  string
	owner string

	mu     sync.Mutex
	tokens map[string]string
}

func NewGormRepository(db *gorm.DB, clock civiltime.Clock, name, owner string) *GormRepository {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &GormRepository{
		db:     db,
		clock:  clock,
		name:   name,
		owner:  owner,
		tokens: make(map[string]string),
	}
}

func (r *GormRepository) Name() string {
	return r.name
}

// Init creates or migrates the schema.
func (r *GormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&postModel{}, &lockModel{}, &cronLogModel{}, &eventModel{})
}

func (r *GormRepository) List(ctx context.Context) ([]domainPost.Post, error) {
	var models []postModel
	if err := r.db.WithContext(ctx).Order("seq ASC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]domainPost.Post, len(models))
	for i, m := range models {
		result[i] = fromPostModel(m)
	}
	return result, nil
}

// Create assigns the next numeric id when p.ID is empty and stamps timestamps.
func (r *GormRepository) Create(ctx context.Context, p domainPost.Post) (domainPost.Post, error) {
	now := r.clock.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq sql.NullInt64
		if err := tx.Model(&postModel{}).Select("MAX(seq)").Row().Scan(&maxSeq); err != nil {
			return err
		}
		next := FirstPostID
		if maxSeq.Valid && maxSeq.Int64 >= next {
			next = maxSeq.Int64 + 1
		}
		seq := next
		if p.ID == "" {
			p.ID = strconv.FormatInt(next, 10)
		} else if n, err := strconv.ParseInt(p.ID, 10, 64); err == nil && n >= next {
			seq = n
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if p.Hashtags == nil {
			p.Hashtags = []string{}
		}
		model := toPostModel(p)
		model.Seq = seq
		return tx.Create(&model).Error
	})
	if err != nil {
		return domainPost.Post{}, err
	}
	return p, nil
}

// Update merges patch into the stored post. Unknown ids are ignored.
func (r *GormRepository) Update(ctx context.Context, id string, patch domainPost.Patch) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model postModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		p := fromPostModel(model)
		patch.Apply(&p)
		p.UpdatedAt = r.clock.Now()
		updated := toPostModel(p)
		updated.Seq = model.Seq
		updated.SyncPending = model.SyncPending
		return tx.Save(&updated).Error
	})
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (domainPost.Post, error) {
	var model postModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainPost.Post{}, pkgError.NotFoundError("post " + id + " not found")
		}
		return domainPost.Post{}, err
	}
	return fromPostModel(model), nil
}

func toPostModel(p domainPost.Post) postModel {
	tags, _ := json.Marshal(p.Hashtags)
	m := postModel{
		ID:               p.ID,
		Status:           string(p.Status),
		Draft:            p.Draft,
		ScheduledAt:      p.ScheduledAt,
		SlotID:           p.SlotID,
		DedupeHash:       p.DedupeHash,
		RetryCount:       p.RetryCount,
		LastError:        p.LastError,
		TweetID:          p.TweetID,
		Stage:            p.Stage,
		ABVersion:        p.ABVersion,
		PostType:         p.PostType,
		HasCTA:           p.HasCTA,
		LPPriority:       p.LPPriority,
		Hashtags:         string(tags),
		AIModel:          p.AIModel,
		IsMock:           p.IsMock,
		Memo:             p.Memo,
		ClickCount:       p.ClickCount,
		CVCount:          p.CVCount,
		Revenue:          p.Revenue,
		MetricsCheckedAt: p.MetricsCheckedAt,
		PostedAt:         p.PostedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if e := p.Metrics1h; e != nil {
		m.Metrics1hLike, m.Metrics1hRetweet, m.Metrics1hReply = &e.Like, &e.Retweet, &e.Reply
	}
	if e := p.Metrics24h; e != nil {
		m.Metrics24hLike, m.Metrics24hRetweet, m.Metrics24hReply = &e.Like, &e.Retweet, &e.Reply
	}
	return m
}

func fromPostModel(m postModel) domainPost.Post {
	p := domainPost.Post{
		ID:               m.ID,
		Status:           domainPost.Status(m.Status),
		Draft:            m.Draft,
		ScheduledAt:      m.ScheduledAt,
		SlotID:           m.SlotID,
		DedupeHash:       m.DedupeHash,
		RetryCount:       m.RetryCount,
		LastError:        m.LastError,
		TweetID:          m.TweetID,
		Stage:            m.Stage,
		ABVersion:        m.ABVersion,
		PostType:         m.PostType,
		HasCTA:           m.HasCTA,
		LPPriority:       m.LPPriority,
		Hashtags:         decodeHashtags(m.Hashtags),
		AIModel:          m.AIModel,
		IsMock:           m.IsMock,
		Memo:             m.Memo,
		ClickCount:       m.ClickCount,
		CVCount:          m.CVCount,
		Revenue:          m.Revenue,
		MetricsCheckedAt: utcPtr(m.MetricsCheckedAt),
		PostedAt:         utcPtr(m.PostedAt),
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.Metrics1hLike != nil {
		p.Metrics1h = &domainPost.Engagement{Like: deref(m.Metrics1hLike), Retweet: deref(m.Metrics1hRetweet), Reply: deref(m.Metrics1hReply)}
	}
	if m.Metrics24hLike != nil {
		p.Metrics24h = &domainPost.Engagement{Like: deref(m.Metrics24hLike), Retweet: deref(m.Metrics24hRetweet), Reply: deref(m.Metrics24hReply)}
	}
	return p
}

// decodeHashtags accepts a JSON array, or a legacy comma separated list.
func decodeHashtags(s string) []string {
	tags := []string{}
	if s == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(s), &tags); err == nil {
		return tags
	}
	return splitTags(s)
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
