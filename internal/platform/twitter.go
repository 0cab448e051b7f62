package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoposter/internal/domain"
)

const twitterBaseURL = "https://api.twitter.com/2"

// Twitter publishes through the v2 tweets endpoint using the account's
// OAuth bearer token.
type Twitter struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

type TwitterConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewTwitter(cfg TwitterConfig, logger *slog.Logger) *Twitter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = twitterBaseURL
	}
	return &Twitter{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    baseURL,
		logger:     logger.With("platform", domain.PlatformTwitter),
	}
}

func (t *Twitter) Platform() domain.Platform {
	return domain.PlatformTwitter
}

type tweetRequest struct {
	Text string `json:"text"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (t *Twitter) Publish(ctx context.Context, account *domain.SocialAccount, text string, hashtags, mediaURLs []string) (*PublishResult, error) {
	full := text
	if len(hashtags) > 0 {
		full = text + "\n" + strings.Join(hashtags, " ")
	}

	body, err := json.Marshal(tweetRequest{Text: full})
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("marshal tweet: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transient(fmt.Errorf("post tweet: %w", err))
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var tr tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, domain.Transient(fmt.Errorf("decode response: %w", err))
	}
	if tr.Data.ID == "" {
		return nil, domain.Permanent(fmt.Errorf("response missing tweet id"))
	}

	t.logger.Debug("published tweet", "post_id", tr.Data.ID)

	return &PublishResult{
		PostID: tr.Data.ID,
		URL:    fmt.Sprintf("https://twitter.com/%s/status/%s", account.Username, tr.Data.ID),
	}, nil
}

func (t *Twitter) FetchEngagement(ctx context.Context, account *domain.SocialAccount, postID string) (map[string]any, error) {
	url := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", t.baseURL, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+account.AccessToken)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tweet: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			PublicMetrics map[string]any `json:"public_metrics"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return payload.Data.PublicMetrics, nil
}

// classifyStatus maps an HTTP response to the publish error taxonomy.
// 429 carries the platform's retry-after hint; auth and validation
// failures are permanent; server errors are transient.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.RateLimited(err, retryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Permanent(err)
	case resp.StatusCode >= 500:
		return domain.Transient(err)
	case resp.StatusCode >= 400:
		return domain.Permanent(err)
	default:
		return domain.Transient(err)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	// x-rate-limit-reset is an epoch timestamp
	if v := resp.Header.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return 0
}
