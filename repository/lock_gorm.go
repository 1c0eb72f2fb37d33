package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

type lockModel struct {
	LockKey   string    `gorm:"column:lock_key;primaryKey"`
	Owner     string    `gorm:"column:owner"`
	LockedAt  time.Time `gorm:"column:locked_at"`
	ExpiresAt time.Time `gorm:"column:expires_at;index"`
}

func (lockModel) TableName() string {
	return "locks"
}

// Acquire inserts the lock row or takes over an expired one. Both paths are
// single conditional statements, so two racing callers cannot both win.
func (r *GormRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := r.clock.Now().UTC()
	token := r.owner + ":" + uuid.NewString()
	expires := now.Add(ttl)

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&lockModel{LockKey: key, Owner: token, LockedAt: now, ExpiresAt: expires})
	if res.Error != nil {
		return false, res.Error
	}

	if res.RowsAffected == 0 {
		res = r.db.WithContext(ctx).Model(&lockModel{}).
			Where("lock_key = ? AND expires_at <= ?", key, now).
			Updates(map[string]any{"owner": token, "locked_at": now, "expires_at": expires})
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected == 0 {
			return false, nil
		}
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

// Release expires the lock immediately. A lock taken over by another owner
// after our TTL ran out is left alone.
func (r *GormRepository) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()

	q := r.db.WithContext(ctx).Model(&lockModel{}).Where("lock_key = ?", key)
	if ok {
		q = q.Where("owner = ?", token)
	}
	return q.Update("expires_at", civiltime.Epoch).Error
}
