package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/sirupsen/logrus"
)

const (
	ModeRemote = "remote"
	ModeLocal  = "local"
)

// LocalStore is the fallback backend. It mirrors what the remote returns
// and keeps writes made during an outage until they reach the remote.
type LocalStore interface {
	Backend
	Mirror(ctx context.Context, posts ...domainPost.Post) error
	MarkPending(ctx context.Context, id string, op PendingOp) error
	ListPending(ctx context.Context) ([]PendingPost, error)
	ClearPending(ctx context.Context, id string) error
	ReplaceID(ctx context.Context, oldID string, p domainPost.Post) error
}

// ResilientRepository serves from the remote backend while it works and
// degrades to the local one on the first failure. After ProbeInterval the
// next call tries the remote again, first replaying the posts written
// locally in the meantime.
type ResilientRepository struct {
	remote        Backend
	local         LocalStore
	clock         civiltime.Clock
	probeInterval time.Duration

	mu        sync.RWMutex
	healthy   bool
	lastError string
	downAt    time.Time
	lockOwner map[string]Backend

	syncMu  sync.Mutex
	pending atomic.Bool
}

// NewResilientRepository wraps remote (may be nil) with a local fallback.
func NewResilientRepository(remote Backend, local LocalStore, clock civiltime.Clock, probeInterval time.Duration) *ResilientRepository {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	r := &ResilientRepository{
		remote:        remote,
		local:         local,
		clock:         clock,
		probeInterval: probeInterval,
		healthy:       remote != nil,
		lockOwner:     make(map[string]Backend),
	}
	// rows left pending by an earlier process are checked on first contact
	r.pending.Store(remote != nil)
	return r
}

func (r *ResilientRepository) Name() string {
	if r.remote == nil {
		return r.local.Name()
	}
	return r.remote.Name() + "+" + r.local.Name()
}

// Init prepares both backends. Only a local failure is fatal.
func (r *ResilientRepository) Init(ctx context.Context) error {
	if err := r.local.Init(ctx); err != nil {
		return err
	}
	if r.remote != nil {
		if err := r.remote.Init(ctx); err != nil {
			r.markDown("init", err)
		}
	}
	return nil
}

// Healthy reports whether the remote backend is configured and reachable.
func (r *ResilientRepository) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remote != nil && r.healthy
}

func (r *ResilientRepository) LastError() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

func (r *ResilientRepository) Mode() string {
	if r.Healthy() {
		return ModeRemote
	}
	return ModeLocal
}

func (r *ResilientRepository) remoteCandidate() (Backend, bool) {
	if r.remote == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.healthy {
		return r.remote, true
	}
	if r.probeInterval > 0 && r.clock.Now().Sub(r.downAt) >= r.probeInterval {
		return r.remote, true
	}
	return nil, false
}

func (r *ResilientRepository) markDown(op string, err error) {
	r.mu.Lock()
	wasHealthy := r.healthy
	r.healthy = false
	r.lastError = err.Error()
	r.downAt = r.clock.Now()
	r.mu.Unlock()

	entry := logrus.WithError(err).WithField("op", op)
	if wasHealthy {
		entry.Errorf("[STORE] remote %s failed, switching to local mode", r.remote.Name())
	} else {
		entry.Warnf("[STORE] remote %s still unavailable", r.remote.Name())
	}
}

func (r *ResilientRepository) markUp() {
	r.mu.Lock()
	wasHealthy := r.healthy
	r.healthy = true
	r.mu.Unlock()
	if !wasHealthy {
		logrus.Infof("[STORE] remote %s reachable again", r.remote.Name())
	}
}

// call runs fn on the remote when possible and on the local backend
// otherwise. NotFound is a valid answer, not an outage.
func call[T any](ctx context.Context, r *ResilientRepository, op string, fn func(Backend) (T, error)) (T, Backend, error) {
	if b, ok := r.remoteCandidate(); ok {
		if err := r.sync(ctx); err != nil {
			r.markDown("sync", err)
		} else {
			v, err := fn(b)
			if err == nil || pkgError.IsNotFound(err) {
				r.markUp()
				return v, b, err
			}
			r.markDown(op, err)
		}
	}
	v, err := fn(r.local)
	return v, r.local, err
}

func (r *ResilientRepository) isRemote(b Backend) bool {
	return r.remote != nil && b == r.remote
}

// mirror copies remote results into the local store. Failures are only
// logged.
func (r *ResilientRepository) mirror(ctx context.Context, posts ...domainPost.Post) {
	if err := r.local.Mirror(ctx, posts...); err != nil {
		logrus.WithError(err).Warn("[STORE] failed to mirror remote posts locally")
	}
}

func (r *ResilientRepository) markPending(ctx context.Context, id string, op PendingOp) error {
	if r.remote == nil {
		return nil
	}
	if err := r.local.MarkPending(ctx, id, op); err != nil {
		return err
	}
	r.pending.Store(true)
	return nil
}

// sync replays locally written posts onto the remote. It stops at the
// first remote failure and leaves the rest pending.
func (r *ResilientRepository) sync(ctx context.Context) error {
	if !r.pending.Load() {
		return nil
	}
	r.syncMu.Lock()
	defer r.syncMu.Unlock()
	if !r.pending.Swap(false) {
		return nil
	}

	rows, err := r.local.ListPending(ctx)
	if err != nil {
		r.pending.Store(true)
		logrus.WithError(err).Warn("[STORE] could not read pending local posts")
		return nil
	}
	for _, row := range rows {
		if err := r.push(ctx, row); err != nil {
			r.pending.Store(true)
			return err
		}
	}
	if len(rows) > 0 {
		logrus.Infof("[STORE] replayed %d local posts to %s", len(rows), r.remote.Name())
	}
	return nil
}

func (r *ResilientRepository) push(ctx context.Context, row PendingPost) error {
	p := row.Post
	existing, err := r.remote.FindByID(ctx, p.ID)
	switch {
	case pkgError.IsNotFound(err):
		created, err := r.remote.Create(ctx, p)
		if err != nil {
			return err
		}
		if err := r.local.Mirror(ctx, created); err != nil {
			logrus.WithError(err).Warnf("[STORE] post %s replayed but not re-mirrored", p.ID)
		}
		r.clearPending(ctx, p.ID)
		return nil
	case err != nil:
		return err
	case row.Op == PendingCreate && !sameOrigin(existing, p):
		return r.renumber(ctx, p)
	}
	if err := r.remote.Update(ctx, p.ID, p.FullPatch()); err != nil {
		return err
	}
	r.clearPending(ctx, p.ID)
	return nil
}

// clearPending failures leave the row to be replayed again, which is
// harmless: a replayed create finds its own row and becomes an update.
func (r *ResilientRepository) clearPending(ctx context.Context, id string) {
	if err := r.local.ClearPending(ctx, id); err != nil {
		logrus.WithError(err).Warnf("[STORE] post %s replayed but still flagged pending", id)
	}
}

// renumber stores a locally created post under a fresh remote id because
// another writer took its id during the outage.
func (r *ResilientRepository) renumber(ctx context.Context, p domainPost.Post) error {
	oldID := p.ID
	fresh := p
	fresh.ID = ""
	if fresh.Status != domainPost.StatusPosted {
		fresh.Draft = strings.ReplaceAll(fresh.Draft, "pid="+oldID, "pid="+domainPost.PostIDPlaceholder)
	}
	created, err := r.remote.Create(ctx, fresh)
	if err != nil {
		return err
	}
	if strings.Contains(created.Draft, domainPost.PostIDPlaceholder) {
		created.Draft = strings.ReplaceAll(created.Draft, domainPost.PostIDPlaceholder, created.ID)
		if err := r.remote.Update(ctx, created.ID, domainPost.Patch{Draft: domainPost.Ptr(created.Draft)}); err != nil {
			return err
		}
	}
	logrus.Warnf("[STORE] local post %s collided with a remote post, stored as %s", oldID, created.ID)
	return r.local.ReplaceID(ctx, oldID, created)
}

// sameOrigin reports whether the remote row is the one a previous replay
// of p already wrote. The sheet keeps timestamps to the second.
func sameOrigin(remote, local domainPost.Post) bool {
	return remote.CreatedAt.Truncate(time.Second).Equal(local.CreatedAt.Truncate(time.Second))
}

func (r *ResilientRepository) List(ctx context.Context) ([]domainPost.Post, error) {
	v, b, err := call(ctx, r, "list", func(b Backend) ([]domainPost.Post, error) { return b.List(ctx) })
	if err == nil && r.isRemote(b) {
		r.mirror(ctx, v...)
	}
	return v, err
}

func (r *ResilientRepository) Create(ctx context.Context, p domainPost.Post) (domainPost.Post, error) {
	v, b, err := call(ctx, r, "create", func(b Backend) (domainPost.Post, error) { return b.Create(ctx, p) })
	if err != nil {
		return v, err
	}
	if r.isRemote(b) {
		r.mirror(ctx, v)
		return v, nil
	}
	return v, r.markPending(ctx, v.ID, PendingCreate)
}

// Update on the local store only succeeds for posts it holds. A post the
// remote knows but the local store never saw is an error while degraded,
// never a silent no-op.
func (r *ResilientRepository) Update(ctx context.Context, id string, patch domainPost.Patch) error {
	_, b, err := call(ctx, r, "update", func(b Backend) (struct{}, error) {
		if !r.isRemote(b) && r.remote != nil {
			if _, err := r.local.FindByID(ctx, id); err != nil {
				if pkgError.IsNotFound(err) {
					return struct{}{}, pkgError.InternalServerError(fmt.Sprintf("post %s is not in the local store while %s is unavailable", id, r.remote.Name()))
				}
				return struct{}{}, err
			}
		}
		return struct{}{}, b.Update(ctx, id, patch)
	})
	if err != nil {
		return err
	}
	if r.isRemote(b) {
		if err := r.local.Update(ctx, id, patch); err != nil {
			logrus.WithError(err).Warnf("[STORE] failed to mirror update of post %s", id)
		}
		return nil
	}
	return r.markPending(ctx, id, PendingUpdate)
}

func (r *ResilientRepository) FindByID(ctx context.Context, id string) (domainPost.Post, error) {
	v, b, err := call(ctx, r, "find", func(b Backend) (domainPost.Post, error) { return b.FindByID(ctx, id) })
	if err == nil && r.isRemote(b) {
		r.mirror(ctx, v)
	}
	return v, err
}

func (r *ResilientRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, owner, err := call(ctx, r, "acquire", func(b Backend) (bool, error) { return b.Acquire(ctx, key, ttl) })
	if err == nil && ok {
		r.mu.Lock()
		r.lockOwner[key] = owner
		r.mu.Unlock()
	}
	return ok, err
}

// Release goes to whichever backend granted the lock.
func (r *ResilientRepository) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	owner, ok := r.lockOwner[key]
	delete(r.lockOwner, key)
	r.mu.Unlock()
	if ok {
		return owner.Release(ctx, key)
	}
	_, _, err := call(ctx, r, "release", func(b Backend) (struct{}, error) { return struct{}{}, b.Release(ctx, key) })
	return err
}

func (r *ResilientRepository) AppendCronLog(ctx context.Context, e domainCron.LogEntry) error {
	_, _, err := call(ctx, r, "cron_log", func(b Backend) (struct{}, error) { return struct{}{}, b.AppendCronLog(ctx, e) })
	return err
}

func (r *ResilientRepository) ListCronLogs(ctx context.Context, limit int) ([]domainCron.LogEntry, error) {
	v, _, err := call(ctx, r, "list_cron_logs", func(b Backend) ([]domainCron.LogEntry, error) { return b.ListCronLogs(ctx, limit) })
	return v, err
}

func (r *ResilientRepository) AppendEvent(ctx context.Context, e domainTracking.Event) error {
	_, _, err := call(ctx, r, "event", func(b Backend) (struct{}, error) { return struct{}{}, b.AppendEvent(ctx, e) })
	return err
}

func (r *ResilientRepository) ListEvents(ctx context.Context, postID string) ([]domainTracking.Event, error) {
	v, _, err := call(ctx, r, "list_events", func(b Backend) ([]domainTracking.Event, error) { return b.ListEvents(ctx, postID) })
	return v, err
}

var _ Backend = (*ResilientRepository)(nil)
