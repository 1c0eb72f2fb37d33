package tracking

import (
	"context"
	"time"
)

type EventKind string

const (
	EventClick EventKind = "click"
	EventCV    EventKind = "cv"
)

// Event is one click or conversion. Only a hash of the client IP is kept.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	PostID    string    `json:"pid"`
	LPID      string    `json:"lp_id"`
	UserAgent string    `json:"ua,omitempty"`
	Referer   string    `json:"ref,omitempty"`
	IPHash    string    `json:"ip_hash,omitempty"`
	IsBot     bool      `json:"is_bot"`
	Revenue   float64   `json:"revenue,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	DestURL   string    `json:"dest_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type IEventRepository interface {
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, postID string) ([]Event, error)
}

type ClickRequest struct {
	PostID    string `query:"pid"`
	LP        string `query:"lp"`
	Type      string `query:"type"`
	UserAgent string `query:"-"`
	Referer   string `query:"-"`
	IP        string `query:"-"`
}

type ClickResponse struct {
	RedirectURL string `json:"redirect_url"`
	PostID      string `json:"pid"`
	LPID        string `json:"lp_id"`
	IsBot       bool   `json:"is_bot"`
}

type ConversionRequest struct {
	PostID    string  `json:"pid" form:"pid" query:"pid"`
	LP        string  `json:"lp" form:"lp" query:"lp"`
	Revenue   float64 `json:"revenue" form:"revenue" query:"revenue"`
	OrderID   string  `json:"order_id" form:"order_id" query:"order_id"`
	UserAgent string  `json:"-"`
	Referer   string  `json:"-"`
	IP        string  `json:"-"`
}

type ITrackingUsecase interface {
	Click(ctx context.Context, request ClickRequest) (ClickResponse, error)
	Conversion(ctx context.Context, request ConversionRequest) error
}
