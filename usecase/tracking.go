package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/AzielCF/az-autopost/core/config"
	domainPost "github.com/AzielCF/az-autopost/domains/post"
	domainTracking "github.com/AzielCF/az-autopost/domains/tracking"
	"github.com/AzielCF/az-autopost/pkg/civiltime"
	pkgError "github.com/AzielCF/az-autopost/pkg/error"
	"github.com/AzielCF/az-autopost/validations"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DirectVisitPID = "direct_visit"
	DefaultLPID    = "mini_main"
)

var botPatterns = []string{
	"bot", "spider", "crawl", "slurp", "google", "bing", "yandex", "baidu",
	"facebook", "twitter", "whatsapp", "telegram", "slack", "discord",
	"headless", "phantom", "puppeteer", "vercel", "screenshot",
}

// IsBot flags link-preview fetchers and crawlers. An empty user agent
// counts as a bot.
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return true
	}
	ua := strings.ToLower(userAgent)
	for _, p := range botPatterns {
		if strings.Contains(ua, p) {
			return true
		}
	}
	return false
}

func hashIP(ip string) string {
	if ip == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

type serviceTracking struct {
	store  domainPost.IPostStore
	events domainTracking.IEventRepository
	cfg    config.TrackingConfig
	clock  civiltime.Clock
}

func NewTrackingService(store domainPost.IPostStore, events domainTracking.IEventRepository, cfg config.TrackingConfig, clock civiltime.Clock) domainTracking.ITrackingUsecase {
	if clock == nil {
		clock = civiltime.SystemClock{}
	}
	return &serviceTracking{store: store, events: events, cfg: cfg, clock: clock}
}

// destination resolves the landing page for a click and tags it with pid.
func (service *serviceTracking) destination(lp, kind, pid string) string {
	dest := strings.TrimRight(service.cfg.LPBaseURL, "/")
	if lp != "" && lp != DefaultLPID && lp != "mini_lp" {
		dest = dest + "/" + url.PathEscape(lp)
	}
	if (kind == "biz" || kind == "tob") && service.cfg.BizURL != "" {
		dest = service.cfg.BizURL
	}
	u, err := url.Parse(dest)
	if err != nil {
		return dest
	}
	q := u.Query()
	q.Set("pid", pid)
	u.RawQuery = q.Encode()
	return u.String()
}

// Click records a redirect hit. Logging failures never block the redirect.
func (service *serviceTracking) Click(ctx context.Context, request domainTracking.ClickRequest) (domainTracking.ClickResponse, error) {
	pid := strings.TrimSpace(request.PostID)
	if pid == "" {
		pid = DirectVisitPID
	}
	lp := strings.TrimSpace(request.LP)
	if lp == "" {
		lp = DefaultLPID
	}

	response := domainTracking.ClickResponse{
		RedirectURL: service.destination(lp, request.Type, pid),
		PostID:      pid,
		LPID:        lp,
		IsBot:       IsBot(request.UserAgent),
	}

	event := domainTracking.Event{
		ID:        uuid.NewString(),
		Kind:      domainTracking.EventClick,
		PostID:    pid,
		LPID:      lp,
		UserAgent: request.UserAgent,
		Referer:   request.Referer,
		IPHash:    hashIP(request.IP),
		IsBot:     response.IsBot,
		DestURL:   response.RedirectURL,
		CreatedAt: service.clock.Now(),
	}
	if err := service.events.AppendEvent(ctx, event); err != nil {
		logrus.WithError(err).Error("[TRACKING] failed to log click")
	}

	if !response.IsBot && pid != DirectVisitPID {
		service.bump(ctx, pid, func(p domainPost.Post) domainPost.Patch {
			return domainPost.Patch{ClickCount: domainPost.Ptr(p.ClickCount + 1)}
		})
	}
	return response, nil
}

// Conversion records a purchase or signup attributed to a post.
func (service *serviceTracking) Conversion(ctx context.Context, request domainTracking.ConversionRequest) error {
	if err := validations.ValidateConversion(ctx, request); err != nil {
		return err
	}
	lp := request.LP
	if lp == "" {
		lp = DefaultLPID
	}

	event := domainTracking.Event{
		ID:        uuid.NewString(),
		Kind:      domainTracking.EventCV,
		PostID:    request.PostID,
		LPID:      lp,
		UserAgent: request.UserAgent,
		Referer:   request.Referer,
		IPHash:    hashIP(request.IP),
		IsBot:     IsBot(request.UserAgent),
		Revenue:   request.Revenue,
		OrderID:   request.OrderID,
		CreatedAt: service.clock.Now(),
	}
	if err := service.events.AppendEvent(ctx, event); err != nil {
		return pkgError.InternalServerError(err.Error())
	}

	service.bump(ctx, request.PostID, func(p domainPost.Post) domainPost.Patch {
		return domainPost.Patch{
			CVCount: domainPost.Ptr(p.CVCount + 1),
			Revenue: domainPost.Ptr(p.Revenue + request.Revenue),
		}
	})
	logrus.Infof("[TRACKING] cv for post %s revenue=%.0f", request.PostID, request.Revenue)
	return nil
}

// bump applies a counter update to a post. Unknown posts are ignored; the
// event log still has the hit.
func (service *serviceTracking) bump(ctx context.Context, id string, build func(domainPost.Post) domainPost.Patch) {
	p, err := service.store.FindByID(ctx, id)
	if err != nil {
		if !pkgError.IsNotFound(err) {
			logrus.WithError(err).Warnf("[TRACKING] could not load post %s", id)
		}
		return
	}
	if err := service.store.Update(ctx, id, build(p)); err != nil {
		logrus.WithError(err).Warnf("[TRACKING] could not update counters of post %s", id)
	}
}
