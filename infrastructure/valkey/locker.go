package valkey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Locker implements lock.ILocker with SET NX PX. The value is a per-acquire
// token so a release never drops a lock that expired and was taken over.
type Locker struct {
	client *Client
	owner  string

	mu     sync.Mutex
	tokens map[string]string
}

func NewLocker(client *Client, owner string) *Locker {
	return &Locker{client: client, owner: owner, tokens: make(map[string]string)}
}

func (l *Locker) key(name string) string {
	return l.client.Key("lock", name)
}

func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := l.owner + ":" + uuid.NewString()
	inner := l.client.Inner()
	cmd := inner.B().Set().Key(l.key(name)).Value(token).Nx().Px(ttl).Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		if IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	l.mu.Lock()
	l.tokens[name] = token
	l.mu.Unlock()
	logrus.Debugf("[LOCK] acquired %s as %s", name, token)
	return true, nil
}

// Release deletes the key only while it still carries our token. GET and
// DEL are two round trips; the window between them is bounded by the TTL.
func (l *Locker) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	token, ok := l.tokens[name]
	delete(l.tokens, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	inner := l.client.Inner()
	current, err := inner.Do(ctx, inner.B().Get().Key(l.key(name)).Build()).ToString()
	if err != nil {
		if IsNil(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock %s: %w", name, err)
	}
	if current != token {
		logrus.Warnf("[LOCK] %s was taken over before release, leaving it", name)
		return nil
	}
	return inner.Do(ctx, inner.B().Del().Key(l.key(name)).Build()).Error()
}
