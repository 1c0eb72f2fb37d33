package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/AzielCF/az-autopost/core/config"
	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainGenerator "github.com/AzielCF/az-autopost/domains/generator"
	domainNotify "github.com/AzielCF/az-autopost/domains/notify"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/AzielCF/az-autopost/pkg/dedupe"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
)

func jst(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, civiltime.Location).UTC()
}

// memStore is an in-memory IPostStore.
type memStore struct {
	mu        sync.Mutex
	posts     []domainPost.Post
	nextID    int
	listErr   error
	beforeGet func(id string)
}

func newMemStore(posts ...domainPost.Post) *memStore {
	s := &memStore{nextID: 100001}
	for _, p := range posts {
		_, _ = s.Create(context.Background(), p)
	}
	return s
}

func (s *memStore) List(ctx context.Context) ([]domainPost.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domainPost.Post(nil), s.posts...), nil
}

func (s *memStore) Create(ctx context.Context, p domainPost.Post) (domainPost.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = strconv.Itoa(s.nextID)
	}
	s.nextID++
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	s.posts = append(s.posts, p)
	return p, nil
}

func (s *memStore) Update(ctx context.Context, id string, patch domainPost.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.posts {
		if s.posts[i].ID == id {
			patch.Apply(&s.posts[i])
		}
	}
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id string) (domainPost.Post, error) {
	if s.beforeGet != nil {
		s.beforeGet(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, nil
		}
	}
	return domainPost.Post{}, pkgError.NotFoundError(fmt.Sprintf("post %s not found", id))
}

func (s *memStore) get(t *testing.T, id string) domainPost.Post {
	t.Helper()
	p, err := s.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("post %s: %v", id, err)
	}
	return p
}

func (s *memStore) byStatus(status domainPost.Status) []domainPost.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domainPost.Post
	for _, p := range s.posts {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

type memLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]bool{}} }

func (l *memLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *memLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type memCronLogs struct {
	mu      sync.Mutex
	entries []domainCron.LogEntry
}

func (c *memCronLogs) AppendCronLog(ctx context.Context, e domainCron.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *memCronLogs) ListCronLogs(ctx context.Context, limit int) ([]domainCron.LogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domainCron.LogEntry, 0, len(c.entries))
	for i := len(c.entries) - 1; i >= 0; i-- {
		out = append(out, c.entries[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	fail    error
	calls   []string
	metrics *domainPost.Engagement
}

func (f *fakePublisher) Publish(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.fail != nil {
		return "", f.fail
	}
	return fmt.Sprintf("tw-%d", len(f.calls)), nil
}

func (f *fakePublisher) Metrics(ctx context.Context, id string) (*domainPost.Engagement, error) {
	if f.metrics == nil {
		return nil, nil
	}
	m := *f.metrics
	return &m, nil
}

// sampleTexts share few runes with each other so they pass the similarity check.
var sampleTexts = []string{
	"朝の換気で部屋の空気を入れ替えよう",
	"花粉シーズン到来、対策は万全ですか？",
	"ペットの毛が気になる季節になりました",
	"梅雨どきは湿度管理が大切です",
	"寝室の環境を見直して快眠生活",
	"在宅ワーク中の集中力アップ術",
	"子どもの健康を守るための工夫",
	"冬場の乾燥から喉を守る方法",
	"料理のにおいが残らないコツ",
	"新生活、引っ越し後にやること",
	"黄砂とPM2.5の飛来に備える",
	"タバコ臭を消す三つの習慣",
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []domainGenerator.Request
	err      error
	next     int
	panicMsg string
}

func (g *fakeGenerator) Generate(ctx context.Context, req domainGenerator.Request) ([]domainGenerator.Draft, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	drafts := make([]domainGenerator.Draft, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		drafts = append(drafts, domainGenerator.Draft{
			Draft:    sampleTexts[g.next%len(sampleTexts)],
			Hashtags: []string{"#空気"},
			AIModel:  "fake",
		})
		g.next++
	}
	return drafts, nil
}

type sentNotification struct {
	Severity domainNotify.Severity
	Message  string
	CtxErr   error
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, severity domainNotify.Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{Severity: severity, Message: message, CtxErr: ctx.Err()})
}

func (n *fakeNotifier) count(severity domainNotify.Severity) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Severity == severity {
			c++
		}
	}
	return c
}

func testScheduleConfig() config.ScheduleConfig {
	return config.ScheduleConfig{
		SlotTimes:           []string{"08:00", "12:00", "20:00"},
		AllocateSlotTimes:   []string{"08:00", "12:00"},
		LookaheadDays:       90,
		JitterMinutes:       30,
		SimilarityThreshold: dedupe.DefaultThreshold,
		DedupeWindow:        dedupe.DefaultWindow,
		DueBuffer:           10 * time.Minute,
		StaleAfter:          24 * time.Hour,
		BatchSize:           5,
		DailyCap:            5,
		MaxRetries:          5,
		BreakerThreshold:    5,
		EmergencyHours:      []int{8, 12, 20},
		DraftsPerDay:        3,
		FillDays:            3,
		LowStockThreshold:   6,
		LockTTL:             60 * time.Second,
		GenerateLockTTL:     300 * time.Second,
	}
}

type schedulerFixture struct {
	svc       *serviceScheduler
	store     *memStore
	locker    *memLocker
	logs      *memCronLogs
	publisher *fakePublisher
	generator *fakeGenerator
	notifier  *fakeNotifier
	clock     *civiltime.FixedClock
}

func newSchedulerFixture(t *testing.T, now time.Time, posts ...domainPost.Post) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		store:     newMemStore(posts...),
		locker:    newMemLocker(),
		logs:      &memCronLogs{},
		publisher: &fakePublisher{},
		generator: &fakeGenerator{},
		notifier:  &fakeNotifier{},
		clock:     civiltime.NewFixedClock(now),
	}
	engine := dedupe.NewEngine(dedupe.DefaultThreshold, dedupe.DefaultWindow)
	svc, err := NewSchedulerService(SchedulerDeps{
		Store:     f.store,
		Locker:    f.locker,
		CronLogs:  f.logs,
		Committer: NewCommitterService(f.store, engine),
		Generator: f.generator,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Engine:    engine,
		Jitter:    NewJitter(30*time.Minute, rand.New(rand.NewPCG(1, 2))),
		Clock:     f.clock,
		Config:    testScheduleConfig(),
	})
	if err != nil {
		t.Fatalf("NewSchedulerService: %v", err)
	}
	f.svc = svc.(*serviceScheduler)
	return f
}

func scheduled(draft string, at time.Time) domainPost.Post {
	civil := civiltime.FormatCivil(at)
	return domainPost.Post{
		Status:      domainPost.StatusScheduled,
		Draft:       draft,
		ScheduledAt: civil,
		SlotID:      civiltime.DeriveSlotID(civil),
		DedupeHash:  dedupe.Hash(draft),
	}
}

func posted(draft string, at time.Time) domainPost.Post {
	p := scheduled(draft, at)
	p.Status = domainPost.StatusPosted
	p.TweetID = "tw-old-" + p.SlotID
	p.PostedAt = &at
	return p
}

func skipReasons(skips []domainPost.Skip) map[string]domainPost.SkipReason {
	out := make(map[string]domainPost.SkipReason, len(skips))
	for _, s := range skips {
		out[s.PostID] = s.Reason
	}
	return out
}

func skipCount(skips []domainPost.Skip, reason domainPost.SkipReason) int {
	n := 0
	for _, s := range skips {
		if s.Reason == reason {
			n++
		}
	}
	return n
}

func slotIDs(posts []domainPost.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.SlotID)
	}
	sort.Strings(out)
	return out
}
