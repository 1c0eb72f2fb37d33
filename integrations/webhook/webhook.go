package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	domainNotify "github.com/AzielCF/az-autopost/domains/notify"
	"github.com/AzielCF/az-autopost/pkg/workerpool"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	httpTimeout = 10 * time.Second
	poolKey     = "webhook"
	lateAfter   = 5 * time.Second
)

var httpClient = &http.Client{Timeout: httpTimeout}

var severityIcon = map[domainNotify.Severity]string{
	domainNotify.SeverityInfo:    "ℹ️",
	domainNotify.SeverityWarning: "⚠️",
	domainNotify.SeverityFatal:   "🚨",
	domainNotify.SeverityUrgent:  "🛑",
}

// Notifier posts {"text": ...} to an incoming webhook. With a pool the
// delivery is asynchronous and ordered; without one it is inline.
type Notifier struct {
	url  string
	pool *workerpool.Pool
}

func New(url string, pool *workerpool.Pool) *Notifier {
	return &Notifier{url: url, pool: pool}
}

func (n *Notifier) Notify(ctx context.Context, severity domainNotify.Severity, message string) {
	if n.url == "" {
		logrus.Debugf("[NOTIFY] no webhook configured, dropping %s notification", severity)
		return
	}
	raisedAt := time.Now()
	if n.pool == nil {
		n.deliver(ctx, severity, message, raisedAt)
		return
	}
	n.pool.Dispatch(workerpool.Job{
		Key: poolKey,
		Handler: func(ctx context.Context) error {
			n.deliver(ctx, severity, message, raisedAt)
			return nil
		},
	})
}

func (n *Notifier) deliver(ctx context.Context, severity domainNotify.Severity, message string, raisedAt time.Time) {
	if err := n.send(ctx, format(severity, message, raisedAt, time.Now())); err != nil {
		logrus.WithError(err).Error("[NOTIFY] webhook notification failed")
	}
}

func format(severity domainNotify.Severity, message string, raisedAt, now time.Time) string {
	text := message
	if icon, ok := severityIcon[severity]; ok {
		text = icon + " " + message
	}
	if now.Sub(raisedAt) > lateAfter {
		text += "\n(raised " + humanize.RelTime(raisedAt, now, "ago", "from now") + ")"
	}
	return text
}

func (n *Notifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
