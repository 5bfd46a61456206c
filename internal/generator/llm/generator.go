// Package llm generates audit reports with an OpenAI-compatible chat
// completions endpoint.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	temperature      = 0.7
	maxTokens        = 3500
	systemPrompt     = "You are a web auditing expert that produces JSON outputs."
	maxErrorBodySize = 4 << 10
)

// ErrMissingAPIKey is returned by New when no key is configured.
var ErrMissingAPIKey = errors.New("llm api key is required")

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// HTTPClient defaults to a client with a 90s timeout.
	HTTPClient *http.Client
}

// Generator implements audit.Generator.
type Generator struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
	clock    audit.Clock
	logger   *zap.Logger
}

// New validates cfg and builds a Generator.
func New(cfg Config, clock audit.Clock, logger *zap.Logger) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if clock == nil {
		return nil, errors.New("llm generator requires a clock")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		apiKey:   cfg.APIKey,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:    cfg.Model,
		client:   cfg.HTTPClient,
		clock:    clock,
		logger:   logger,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a report on url and validates the result.
func (g *Generator) Generate(ctx context.Context, url string) (audit.ReportData, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt(url)},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return audit.ReportData{}, fmt.Errorf("call completions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		g.logger.Warn("completions request rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", detail),
		)
		return audit.ReportData{}, fmt.Errorf("completions returned HTTP %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return audit.ReportData{}, fmt.Errorf("decode completions response: %w", err)
	}
	if len(out.Choices) == 0 {
		return audit.ReportData{}, errors.New("completions response has no choices")
	}
	content := out.Choices[0].Message.Content

	var data audit.ReportData
	if err := json.Unmarshal([]byte(stripFence(content)), &data); err != nil {
		g.logger.Warn("unparseable report content", zap.String("url", url), zap.Int("content_len", len(content)))
		return audit.ReportData{}, fmt.Errorf("parse report content: %w", err)
	}
	if data.URL == "" {
		data.URL = url
	}
	if data.Date == "" {
		data.Date = g.clock.Now().Format("2006-01-02")
	}
	if err := data.Validate(); err != nil {
		return audit.ReportData{}, err
	}
	g.logger.Debug("report generated", zap.String("url", url), zap.Duration("dur", time.Since(start)))
	return data, nil
}

// stripFence removes a surrounding markdown code fence, which chat models
// often add around JSON.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
