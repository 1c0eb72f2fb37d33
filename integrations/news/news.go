package news

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-autopost/pkg/civiltime"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

const (
	maxHeadlines = 10
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	httpClient   = &http.Client{Timeout: 5 * time.Second}
	sourceSuffix = regexp.MustCompile(` - .*$`)
	cdata        = regexp.MustCompile(`^<!\[CDATA\[(.*)\]\]>$`)
)

// Feed fetches headline titles from an RSS search feed and caches them.
// On a fetch failure the last good list is served.
type Feed struct {
	url   string
	ttl   time.Duration
	clock civiltime.Clock

	mu        sync.Mutex
	cache     []string
	fetchedAt time.Time
}

func NewFeed(url string, ttl time.Duration, clock civiltime.Clock) *Feed {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &Feed{url: url, ttl: ttl, clock: clock}
}

func (f *Feed) Headlines(ctx context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	if len(f.cache) > 0 && now.Sub(f.fetchedAt) < f.ttl {
		return f.cache
	}

	titles, err := f.fetch(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[GENERATE] failed to fetch news headlines")
		return f.cache
	}
	if len(titles) > 0 {
		f.cache = titles
		f.fetchedAt = now
		logrus.Infof("[GENERATE] fetched %d news headlines", len(titles))
	}
	return titles
}

func (f *Feed) fetch(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("news feed status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return extractTitles(doc), nil
}

func extractTitles(doc *goquery.Document) []string {
	var titles []string
	doc.Find("item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		title := strings.TrimSpace(item.Find("title").First().Text())
		if m := cdata.FindStringSubmatch(title); m != nil {
			title = m[1]
		}
		title = strings.TrimSpace(sourceSuffix.ReplaceAllString(title, ""))
		if title != "" {
			titles = append(titles, title)
		}
		return len(titles) < maxHeadlines
	})
	return titles
}
