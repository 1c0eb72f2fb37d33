package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	domainCron "github.com/AzielCF/az-autopost/domains/cron"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	"github.com/AzielCF/az-autopost/infrastructure/sheets"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/google/uuid"
)

const (
	tabPosts    = "posts"
	tabLocks    = "locks"
	tabCronLogs = "cron_logs"
	tabEvents   = "events"
)

var postHeaders = []string{
	"id", "status", "draft", "scheduled_at", "slot_id", "dedupe_hash", "retry_count", "last_error",
	"tweet_id", "posted_at", "stage", "ab_version", "post_type", "has_cta", "lp_priority", "hashtags",
	"ai_model", "is_mock", "memo", "click_count", "cv_count", "revenue",
	"metrics_1h_like", "metrics_1h_rt", "metrics_1h_reply",
	"metrics_24h_like", "metrics_24h_rt", "metrics_24h_reply", "metrics_checked_at",
	"created_at", "updated_at",
}

var lockHeaders = []string{"key", "owner", "locked_at", "expires_at"}

var cronLogHeaders = []string{
	"run_id", "action", "status", "duration_ms", "processed_count", "success_count",
	"failed_count", "skipped_count", "error", "created_at", "consecutive_failures",
}

var eventHeaders = []string{
	"id", "kind", "pid", "lp_id", "ua", "ref", "ip_hash", "is_bot", "revenue", "order_id", "dest_url", "created_at",
}

// SheetsRepository implements Backend on top of spreadsheet tabs. The sheet
// has no transactions: every write is read-modify-write and the lock is
// advisory.
type SheetsRepository struct {
	tables sheets.TableClient
	clock  civiltime.Clock
	owner  string

	mu     sync.Mutex
	tokens map[string]string
}

func NewSheetsRepository(tables sheets.TableClient, clock civiltime.Clock, owner string) *SheetsRepository {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &SheetsRepository{tables: tables, clock: clock, owner: owner, tokens: make(map[string]string)}
}

func (r *SheetsRepository) Name() string {
	return "sheets"
}

func (r *SheetsRepository) Init(ctx context.Context) error {
	for name, headers := range map[string][]string{
		tabPosts:    postHeaders,
		tabLocks:    lockHeaders,
		tabCronLogs: cronLogHeaders,
		tabEvents:   eventHeaders,
	} {
		if err := r.tables.EnsureTable(ctx, name, headers); err != nil {
			return err
		}
	}
	return nil
}

func (r *SheetsRepository) List(ctx context.Context) ([]domainPost.Post, error) {
	table, err := r.tables.Read(ctx, tabPosts)
	if err != nil {
		return nil, err
	}
	posts := make([]domainPost.Post, 0, len(table.Rows))
	for _, row := range table.Rows {
		if row.Get("id") == "" {
			continue
		}
		posts = append(posts, decodePostRow(row.Values))
	}
	return posts, nil
}

func (r *SheetsRepository) Create(ctx context.Context, p domainPost.Post) (domainPost.Post, error) {
	if p.ID == "" {
		table, err := r.tables.Read(ctx, tabPosts)
		if err != nil {
			return domainPost.Post{}, err
		}
		ids := make([]string, 0, len(table.Rows))
		for _, row := range table.Rows {
			ids = append(ids, row.Get("id"))
		}
		p.ID = strconv.FormatInt(nextID(ids), 10)
	}
	now := r.clock.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Hashtags == nil {
		p.Hashtags = []string{}
	}
	if err := r.tables.Append(ctx, tabPosts, encodePostRow(p, nil)); err != nil {
		return domainPost.Post{}, err
	}
	return p, nil
}

func (r *SheetsRepository) Update(ctx context.Context, id string, patch domainPost.Patch) error {
	table, err := r.tables.Read(ctx, tabPosts)
	if err != nil {
		return err
	}
	for _, row := range table.Rows {
		if row.Get("id") != id {
			continue
		}
		p := decodePostRow(row.Values)
		patch.Apply(&p)
		p.UpdatedAt = r.clock.Now()
		return r.tables.UpdateRow(ctx, tabPosts, row.Number, encodePostRow(p, row.Values))
	}
	return nil
}

func (r *SheetsRepository) FindByID(ctx context.Context, id string) (domainPost.Post, error) {
	table, err := r.tables.Read(ctx, tabPosts)
	if err != nil {
		return domainPost.Post{}, err
	}
	for _, row := range table.Rows {
		if row.Get("id") == id {
			return decodePostRow(row.Values), nil
		}
	}
	return domainPost.Post{}, pkgError.NotFoundError("post " + id + " not found")
}

// Acquire writes the lock row and reads it back; losing a concurrent write
// shows up as a different owner on the re-read.
func (r *SheetsRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	table, err := r.tables.Read(ctx, tabLocks)
	if err != nil {
		return false, err
	}
	token := r.owner + ":" + uuid.NewString()
	values := map[string]string{
		"key":        key,
		"owner":      token,
		"locked_at":  formatTime(now),
		"expires_at": formatTime(now.Add(ttl)),
	}

	row, found := findRow(table, "key", key)
	if found {
		if parseTime(row.Get("expires_at")).After(now) {
			return false, nil
		}
		err = r.tables.UpdateRow(ctx, tabLocks, row.Number, merge(row.Values, values))
	} else {
		err = r.tables.Append(ctx, tabLocks, values)
	}
	if err != nil {
		return false, err
	}

	verify, err := r.tables.Read(ctx, tabLocks)
	if err != nil {
		return false, err
	}
	if got, ok := findRow(verify, "key", key); !ok || got.Get("owner") != token {
		return false, nil
	}

	r.mu.Lock()
	r.tokens[key] = token
	r.mu.Unlock()
	return true, nil
}

func (r *SheetsRepository) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	token, hasToken := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()

	table, err := r.tables.Read(ctx, tabLocks)
	if err != nil {
		return err
	}
	row, found := findRow(table, "key", key)
	if !found {
		return nil
	}
	if hasToken && row.Get("owner") != token {
		return nil
	}
	return r.tables.UpdateRow(ctx, tabLocks, row.Number, merge(row.Values, map[string]string{
		"expires_at": formatTime(civiltime.Epoch),
	}))
}

func (r *SheetsRepository) AppendCronLog(ctx context.Context, e domainCron.LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}
	return r.tables.Append(ctx, tabCronLogs, map[string]string{
		"run_id":          e.RunID,
		"action":          string(e.Action),
		"status":          string(e.Status),
		"duration_ms":     strconv.FormatInt(e.DurationMs, 10),
		"processed_count": strconv.Itoa(e.ProcessedCount),
		"success_count":   strconv.Itoa(e.SuccessCount),
		"failed_count":    strconv.Itoa(e.FailedCount),
		"skipped_count":   strconv.Itoa(e.SkippedCount),
		"error":           e.Error,
		"created_at":      formatTime(e.CreatedAt),

		"consecutive_failures": strconv.Itoa(e.ConsecutiveFailures),
	})
}

func (r *SheetsRepository) ListCronLogs(ctx context.Context, limit int) ([]domainCron.LogEntry, error) {
	table, err := r.tables.Read(ctx, tabCronLogs)
	if err != nil {
		return nil, err
	}
	var out []domainCron.LogEntry
	for i := len(table.Rows) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		v := table.Rows[i]
		dur, _ := strconv.ParseInt(v.Get("duration_ms"), 10, 64)
		out = append(out, domainCron.LogEntry{
			RunID:          v.Get("run_id"),
			Action:         domainCron.Action(v.Get("action")),
			Status:         domainCron.LogStatus(v.Get("status")),
			DurationMs:     dur,
			ProcessedCount: atoi(v.Get("processed_count")),
			SuccessCount:   atoi(v.Get("success_count")),
			FailedCount:    atoi(v.Get("failed_count")),
			SkippedCount:   atoi(v.Get("skipped_count")),
			Error:          v.Get("error"),
			CreatedAt:      parseTime(v.Get("created_at")),

			ConsecutiveFailures: atoi(v.Get("consecutive_failures")),
		})
	}
	return out, nil
}

func (r *SheetsRepository) AppendEvent(ctx context.Context, e domainTracking.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}
	return r.tables.Append(ctx, tabEvents, map[string]string{
		"id":         e.ID,
		"kind":       string(e.Kind),
		"pid":        e.PostID,
		"lp_id":      e.LPID,
		"ua":         e.UserAgent,
		"ref":        e.Referer,
		"ip_hash":    e.IPHash,
		"is_bot":     formatBool(e.IsBot),
		"revenue":    formatFloat(e.Revenue),
		"order_id":   e.OrderID,
		"dest_url":   e.DestURL,
		"created_at": formatTime(e.CreatedAt),
	})
}

func (r *SheetsRepository) ListEvents(ctx context.Context, postID string) ([]domainTracking.Event, error) {
	table, err := r.tables.Read(ctx, tabEvents)
	if err != nil {
		return nil, err
	}
	var out []domainTracking.Event
	for _, v := range table.Rows {
		if postID != "" && v.Get("pid") != postID {
			continue
		}
		out = append(out, domainTracking.Event{
			ID:        v.Get("id"),
			Kind:      domainTracking.EventKind(v.Get("kind")),
			PostID:    v.Get("pid"),
			LPID:      v.Get("lp_id"),
			UserAgent: v.Get("ua"),
			Referer:   v.Get("ref"),
			IPHash:    v.Get("ip_hash"),
			IsBot:     parseBool(v.Get("is_bot")),
			Revenue:   parseFloat(v.Get("revenue")),
			OrderID:   v.Get("order_id"),
			DestURL:   v.Get("dest_url"),
			CreatedAt: parseTime(v.Get("created_at")),
		})
	}
	return out, nil
}

// encodePostRow renders p as cell values. Hashtags cross this boundary as
// JSON. Columns present in base but unknown to us are kept.
func encodePostRow(p domainPost.Post, base map[string]string) map[string]string {
	tags, _ := json.Marshal(p.Hashtags)
	v := map[string]string{
		"id":           p.ID,
		"status":       string(p.Status),
		"draft":        p.Draft,
		"scheduled_at": p.ScheduledAt,
		"slot_id":      p.SlotID,
		"dedupe_hash":  p.DedupeHash,
		"retry_count":  strconv.Itoa(p.RetryCount),
		"last_error":   p.LastError,
		"tweet_id":     p.TweetID,
		"posted_at":    formatTimePtr(p.PostedAt),
		"stage":        p.Stage,
		"ab_version":   p.ABVersion,
		"post_type":    p.PostType,
		"has_cta":      formatBool(p.HasCTA),
		"lp_priority":  p.LPPriority,
		"hashtags":     string(tags),
		"ai_model":     p.AIModel,
		"is_mock":      formatBool(p.IsMock),
		"memo":         p.Memo,
		"click_count":  strconv.Itoa(p.ClickCount),
		"cv_count":     strconv.Itoa(p.CVCount),
		"revenue":      formatFloat(p.Revenue),

		"metrics_1h_like":    "",
		"metrics_1h_rt":      "",
		"metrics_1h_reply":   "",
		"metrics_24h_like":   "",
		"metrics_24h_rt":     "",
		"metrics_24h_reply":  "",
		"metrics_checked_at": formatTimePtr(p.MetricsCheckedAt),

		"created_at": formatTime(p.CreatedAt),
		"updated_at": formatTime(p.UpdatedAt),
	}
	if e := p.Metrics1h; e != nil {
		v["metrics_1h_like"], v["metrics_1h_rt"], v["metrics_1h_reply"] = strconv.Itoa(e.Like), strconv.Itoa(e.Retweet), strconv.Itoa(e.Reply)
	}
	if e := p.Metrics24h; e != nil {
		v["metrics_24h_like"], v["metrics_24h_rt"], v["metrics_24h_reply"] = strconv.Itoa(e.Like), strconv.Itoa(e.Retweet), strconv.Itoa(e.Reply)
	}
	return merge(base, v)
}

func decodePostRow(v map[string]string) domainPost.Post {
	p := domainPost.Post{
		ID:               v["id"],
		Status:           domainPost.Status(strings.TrimSpace(v["status"])),
		Draft:            v["draft"],
		ScheduledAt:      v["scheduled_at"],
		SlotID:           v["slot_id"],
		DedupeHash:       v["dedupe_hash"],
		RetryCount:       atoi(v["retry_count"]),
		LastError:        v["last_error"],
		TweetID:          v["tweet_id"],
		PostedAt:         parseTimePtr(v["posted_at"]),
		Stage:            v["stage"],
		ABVersion:        v["ab_version"],
		PostType:         v["post_type"],
		HasCTA:           parseBool(v["has_cta"]),
		LPPriority:       v["lp_priority"],
		Hashtags:         decodeHashtags(v["hashtags"]),
		AIModel:          v["ai_model"],
		IsMock:           parseBool(v["is_mock"]),
		Memo:             v["memo"],
		ClickCount:       atoi(v["click_count"]),
		CVCount:          atoi(v["cv_count"]),
		Revenue:          parseFloat(v["revenue"]),
		MetricsCheckedAt: parseTimePtr(v["metrics_checked_at"]),
		CreatedAt:        parseTime(v["created_at"]),
		UpdatedAt:        parseTime(v["updated_at"]),
	}
	if v["metrics_1h_like"] != "" {
		p.Metrics1h = &domainPost.Engagement{Like: atoi(v["metrics_1h_like"]), Retweet: atoi(v["metrics_1h_rt"]), Reply: atoi(v["metrics_1h_reply"])}
	}
	if v["metrics_24h_like"] != "" {
		p.Metrics24h = &domainPost.Engagement{Like: atoi(v["metrics_24h_like"]), Retweet: atoi(v["metrics_24h_rt"]), Reply: atoi(v["metrics_24h_reply"])}
	}
	return p
}

func findRow(t sheets.Table, column, value string) (sheets.Row, bool) {
	for _, row := range t.Rows {
		if row.Get(column) == value {
			return row, true
		}
	}
	return sheets.Row{}, false
}

func merge(base, over map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func parseTimePtr(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Backend = (*SheetsRepository)(nil)
var _ Backend = (*GormRepository)(nil)
