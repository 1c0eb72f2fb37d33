package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainPost "github.com/AzielCF/az-autopost/domains/post"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const httpTimeout = 15 * time.Second

// baseClient is the transport under the oauth2 wrapper.
var baseClient = &http.Client{Timeout: httpTimeout}

// Client publishes through the X v2 API with a user-context bearer token.
// In dry-run mode nothing leaves the process.
type Client struct {
	apiBase string
	http    *http.Client
	dryRun  bool
	now     func() time.Time
}

func NewClient(apiBase, accessToken string, dryRun bool) *Client {
	c := &Client{
		apiBase: strings.TrimRight(apiBase, "/"),
		dryRun:  dryRun,
		now:     time.Now,
	}
	if accessToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)
		c.http = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	} else if !dryRun {
		logrus.Warn("[X] access token missing, publishing will fail until one is configured")
	}
	return c
}

type tweetResponse struct {
	Data struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		PublicMetrics *struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
			QuoteCount   int `json:"quote_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (c *Client) Publish(ctx context.Context, text string) (string, error) {
	if c.dryRun {
		id := "mock_id_" + strconv.FormatInt(c.now().UnixMilli(), 10)
		logrus.WithField("chars", len([]rune(text))).Infof("[X] dry run, would post as %s", id)
		return id, nil
	}
	if c.http == nil {
		return "", fmt.Errorf("x client not initialized")
	}

	var out tweetResponse
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/tweets", map[string]string{"text": text}, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("x returned no tweet id")
	}
	logrus.Infof("[X] posted tweet %s", out.Data.ID)
	return out.Data.ID, nil
}

// Metrics returns nil when the platform has no public metrics for id yet.
func (c *Client) Metrics(ctx context.Context, id string) (*domainPost.Engagement, error) {
	if c.dryRun {
		return &domainPost.Engagement{}, nil
	}
	if c.http == nil {
		return nil, fmt.Errorf("x client not initialized")
	}

	endpoint := c.apiBase + "/tweets/" + url.PathEscape(id) + "?tweet.fields=public_metrics"
	var out tweetResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	m := out.Data.PublicMetrics
	if m == nil {
		return nil, nil
	}
	return &domainPost.Engagement{Like: m.LikeCount, Retweet: m.RetweetCount, Reply: m.ReplyCount}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("x api %s: status=%d body=%s", method, resp.StatusCode, string(data))
	}
	if dest != nil {
		return json.Unmarshal(data, dest)
	}
	return nil
}
