package health

import (
	"context"
	"time"
)

type EntityType string

const (
	EntityStore   EntityType = "content_store"
	EntityBreaker EntityType = "circuit_breaker"
	EntityCron    EntityType = "cron"
)

type Status string

const (
	StatusOk       Status = "OK"
	StatusDegraded Status = "DEGRADED"
	StatusError    Status = "ERROR"
	StatusUnknown  Status = "UNKNOWN"
)

type HealthRecord struct {
	EntityType  EntityType `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	Status      Status     `json:"status"`
	LastMessage string     `json:"last_message"`
	LastChecked time.Time  `json:"last_checked"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// IStoreStatus exposes the degrade-to-local state of the content store.
type IStoreStatus interface {
	Name() string
	Healthy() bool
	LastError() string
	Mode() string
}

type IHealthUsecase interface {
	CheckStore(ctx context.Context) HealthRecord
	CheckBreaker(ctx context.Context) HealthRecord
	CheckCron(ctx context.Context) ([]HealthRecord, error)
	CheckAll(ctx context.Context) ([]HealthRecord, error)
}
