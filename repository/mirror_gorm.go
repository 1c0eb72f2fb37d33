package repository

import (
	"context"
	"errors"
	"strconv"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PendingOp records why a local row still has to be written to the remote.
type PendingOp string

const (
	PendingCreate PendingOp = "create"
	PendingUpdate PendingOp = "update"
)

var mirrorColumns = []string{
	"seq", "status", "draft", "scheduled_at", "slot_id", "dedupe_hash", "retry_count", "last_error",
	"tweet_id", "stage", "ab_version", "post_type", "has_cta", "lp_priority", "hashtags", "ai_model",
	"is_mock", "memo", "click_count", "cv_count", "revenue",
	"metrics_1h_like", "metrics_1h_rt", "metrics_1h_reply",
	"metrics_24h_like", "metrics_24h_rt", "metrics_24h_reply", "metrics_checked_at",
	"posted_at", "created_at", "updated_at",
}

// PendingPost is a local row written while the remote was unreachable.
type PendingPost struct {
	Post domainPost.Post
	Op   PendingOp
}

// Mirror upserts remote posts into the local store, keeping their ids and
// timestamps. Rows with unsynced local writes are left alone.
func (r *GormRepository) Mirror(ctx context.Context, posts ...domainPost.Post) error {
	if len(posts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := make([]string, len(posts))
		for i, p := range posts {
			ids[i] = p.ID
		}
		var pending []string
		if err := tx.Model(&postModel{}).Where("id IN ? AND sync_pending <> ''", ids).Pluck("id", &pending).Error; err != nil {
			return err
		}
		skip := make(map[string]bool, len(pending))
		for _, id := range pending {
			skip[id] = true
		}

		models := make([]postModel, 0, len(posts))
		for _, p := range posts {
			if p.ID == "" || skip[p.ID] {
				continue
			}
			if p.Hashtags == nil {
				p.Hashtags = []string{}
			}
			m := toPostModel(p)
			if n, err := strconv.ParseInt(p.ID, 10, 64); err == nil {
				m.Seq = n
			}
			models = append(models, m)
		}
		if len(models) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(mirrorColumns),
		}).CreateInBatches(&models, 200).Error
	})
}

// MarkPending flags a row for replay. A pending create stays a create when
// the row is updated again before the remote comes back.
func (r *GormRepository) MarkPending(ctx context.Context, id string, op PendingOp) error {
	q := r.db.WithContext(ctx).Model(&postModel{}).Where("id = ?", id)
	if op == PendingUpdate {
		q = q.Where("COALESCE(sync_pending, '') <> ?", string(PendingCreate))
	}
	return q.Update("sync_pending", string(op)).Error
}

// ListPending returns unsynced rows in creation order.
func (r *GormRepository) ListPending(ctx context.Context) ([]PendingPost, error) {
	var models []postModel
	if err := r.db.WithContext(ctx).Where("sync_pending <> ''").Order("seq ASC").Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]PendingPost, len(models))
	for i, m := range models {
		out[i] = PendingPost{Post: fromPostModel(m), Op: PendingOp(m.SyncPending)}
	}
	return out, nil
}

func (r *GormRepository) ClearPending(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&postModel{}).Where("id = ?", id).Update("sync_pending", "").Error
}

// ReplaceID swaps the row stored under oldID for p, used when a locally
// assigned id turned out to be taken on the remote.
func (r *GormRepository) ReplaceID(ctx context.Context, oldID string, p domainPost.Post) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&postModel{}, "id = ?", oldID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("post " + oldID + " not in local store")
		}
		if p.Hashtags == nil {
			p.Hashtags = []string{}
		}
		m := toPostModel(p)
		if n, err := strconv.ParseInt(p.ID, 10, 64); err == nil {
			m.Seq = n
		}
		return tx.Create(&m).Error
	})
}
