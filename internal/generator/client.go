package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"autoposter/internal/config"
	"autoposter/internal/domain"
)

// Client calls the external AI content service over HTTP. It implements
// engine.Generator.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewClient(cfg config.GeneratorConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		logger:  logger.With("component", "generator"),
	}
}

// Generate requests one piece of platform-ready content. Failures are
// returned as-is; the caller decides how they feed into automation
// error accounting.
func (c *Client) Generate(ctx context.Context, genReq domain.GenerationRequest) (*domain.GeneratedContent, error) {
	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	url := c.baseURL + "/v1/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet)
	}

	var content domain.GeneratedContent
	if err := json.NewDecoder(resp.Body).Decode(&content); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if content.Text == "" {
		return nil, fmt.Errorf("generator returned empty content for topic %q", genReq.Topic)
	}

	c.logger.Debug("content generated",
		"platform", genReq.Platform,
		"topic", genReq.Topic,
		"length", len(content.Text),
		"hashtags", len(content.Hashtags),
	)

	return &content, nil
}
