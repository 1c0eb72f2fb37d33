package repository

import (
	"context"
	"time"

	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
)

type eventModel struct {
	ID        string `gorm:"primaryKey"`
	Kind      string `gorm:"index"`
	PostID    string `gorm:"column:pid;index"`
	LPID      string `gorm:"column:lp_id"`
	UserAgent string `gorm:"column:ua;type:text"`
	Referer   string `gorm:"column:ref;type:text"`
	IPHash    string `gorm:"column:ip_hash"`
	IsBot     bool   `gorm:"column:is_bot"`
	Revenue   float64
	OrderID   string `gorm:"column:order_id"`
	DestURL   string `gorm:"column:dest_url"`
	CreatedAt time.Time
}

func (eventModel) TableName() string {
	return "events"
}

func (r *GormRepository) AppendEvent(ctx context.Context, e domainTracking.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}
	model := eventModel{
		ID:        e.ID,
		Kind:      string(e.Kind),
		PostID:    e.PostID,
		LPID:      e.LPID,
		UserAgent: e.UserAgent,
		Referer:   e.Referer,
		IPHash:    e.IPHash,
		IsBot:     e.IsBot,
		Revenue:   e.Revenue,
		OrderID:   e.OrderID,
		DestURL:   e.DestURL,
		CreatedAt: e.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// ListEvents returns events oldest first; an empty postID lists all.
func (r *GormRepository) ListEvents(ctx context.Context, postID string) ([]domainTracking.Event, error) {
	var models []eventModel
	q := r.db.WithContext(ctx).Order("created_at ASC")
	if postID != "" {
		q = q.Where("pid = ?", postID)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	result := make([]domainTracking.Event, len(models))
	for i, m := range models {
		result[i] = domainTracking.Event{
			ID:        m.ID,
			Kind:      domainTracking.EventKind(m.Kind),
			PostID:    m.PostID,
			LPID:      m.LPID,
			UserAgent: m.UserAgent,
			Referer:   m.Referer,
			IPHash:    m.IPHash,
			IsBot:     m.IsBot,
			Revenue:   m.Revenue,
			OrderID:   m.OrderID,
			DestURL:   m.DestURL,
			CreatedAt: m.CreatedAt.UTC(),
		}
	}
	return result, nil
}
