package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel   = "gpt-3.5-turbo"
	defaultDialect = "PostgreSQL"
	defaultTimeout = 30 * time.Second
	maxDetailBytes = 512
)

type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	Dialect            string
	QueryTemperature   float64
	SummaryTemperature float64
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Client talks to an OpenAI-compatible chat completions endpoint. It keeps no
// state between calls.
type Client struct {
	baseURL            string
	apiKey             string
	model              string
	dialect            string
	queryTemperature   float64
	summaryTemperature float64
	timeout            time.Duration
	httpClient         *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	dialect := strings.TrimSpace(cfg.Dialect)
	if dialect == "" {
		dialect = defaultDialect
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:            strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:             strings.TrimSpace(cfg.APIKey),
		model:              model,
		dialect:            dialect,
		queryTemperature:   cfg.QueryTemperature,
		summaryTemperature: cfg.SummaryTemperature,
		timeout:            timeout,
		httpClient:         httpClient,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// GenerateQuery turns a natural-language question into query text for the
// configured dialect.
func (c *Client) GenerateQuery(ctx context.Context, question string) (string, error) {
	content, err := c.complete(ctx, queryMessages(c.dialect, question), c.queryTemperature)
	if err != nil {
		return "", err
	}
	queryText := stripMarkdownSQL(content)
	if queryText == "" {
		return "", empty("model returned an empty query")
	}
	return queryText, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices *[]struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, messages []message, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages, Temperature: temperature})
	if err != nil {
		return "", unavailable(0, "marshal chat payload", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", unavailable(0, "build chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", unavailable(0, "request chat completion", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", unavailable(resp.StatusCode, "read chat response body", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", unavailable(resp.StatusCode, truncate(string(rawRespBody)), nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", malformed(resp.StatusCode, "decode chat completion response", err)
	}
	if parsed.Choices == nil {
		return "", malformed(resp.StatusCode, "response has no choices field", nil)
	}
	if len(*parsed.Choices) == 0 {
		return "", empty("empty chat completion choices")
	}
	first := (*parsed.Choices)[0]
	if first.Message == nil {
		return "", malformed(resp.StatusCode, "first choice has no message", nil)
	}
	if first.Message.Content == nil || strings.TrimSpace(*first.Message.Content) == "" {
		return "", empty("first choice has no content")
	}
	return strings.TrimSpace(*first.Message.Content), nil
}

// stripMarkdownSQL removes a surrounding code fence and its language tag.
func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && isFenceTag(trimmed[:newline]) {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(value string) bool {
	value = strings.TrimSpace(value)
	for _, r := range value {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func truncate(value string) string {
	value = strings.TrimSpace(value)
	if len(value) <= maxDetailBytes {
		return value
	}
	return value[:maxDetailBytes] + "..."
}
