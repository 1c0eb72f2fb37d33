package repository

import (
	"context"
	"strconv"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainLock "github.com/AzielCF/az-autopost/domains/lock"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
)

// FirstPostID is the id assigned to the first post of an empty store.
const FirstPostID int64 = 100001

// Backend is everything the scheduler persists: posts, locks, the cron
// audit log and tracking events. Local, remote and resilient stores all
// implement it.
type Backend interface {
	domainPost.IPostStore
	domainLock.ILocker
	domainCron.ICronLogRepository
	domainTracking.IEventRepository
	Init(ctx context.Context) error
	Name() string
}

// nextID returns max(numeric ids)+1, or FirstPostID.
func nextID(ids []string) int64 {
	next := FirstPostID
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		if n >= next {
			next = n + 1
		}
	}
	return next
}
