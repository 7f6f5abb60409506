package answer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const anthropicURL = "https://api.anthropic.com/v1/messages"

// ClaudeClient calls the Anthropic Messages API to answer questions.
type ClaudeClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
	stats      *LLMStats
	log        *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewClaudeClient(apiKey, model string, stats *LLMStats, log *slog.Logger) *ClaudeClient {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ClaudeClient{
		apiKey: apiKey,
		model:  model,
		url:    anthropicURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		stats:   stats,
		log:     log,
		backoff: Backoff,
	}
}

// Model returns the model name sent with each request.
func (c *ClaudeClient) Model() string { return c.model }

type anthropicRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *anthropicError `json:"error"`
}

// streamEvent is the data payload of one server-sent event.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *anthropicError `json:"error"`
}

// Complete sends the conversation and returns the model's text reply.
// 429 and 5xx responses are retried with jittered backoff.
func (c *ClaudeClient) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	start := time.Now()
	var text string
	err := c.withRetry(ctx, func() error {
		var err error
		text, err = c.call(ctx, system, messages)
		return err
	})
	c.record(start, err)
	return text, err
}

// Stream sends the conversation with streaming enabled and calls onText
// with each text delta as it arrives. Only the request itself is retried;
// once the first event is read a failure is returned as is. An error from
// onText stops the stream and is returned.
func (c *ClaudeClient) Stream(ctx context.Context, system string, messages []Message, onText func(string) error) error {
	start := time.Now()
	var resp *http.Response
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.post(ctx, anthropicRequest{
			Model:     c.model,
			MaxTokens: 1024,
			System:    system,
			Messages:  messages,
			Stream:    true,
		})
		return err
	})
	if err == nil {
		err = readStream(resp.Body, onText)
		resp.Body.Close()
	}
	c.record(start, err)
	return err
}

func (c *ClaudeClient) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := range MaxRetries {
		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) || attempt == MaxRetries-1 {
			break
		}
		c.log.Warn("retryable claude error", "attempt", attempt, "error", lastErr)
		select {
		case <-time.After(retryDelay(lastErr, attempt, c.backoff)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *ClaudeClient) record(start time.Time, err error) {
	if c.stats == nil {
		return
	}
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.stats.RecordFailure(elapsed)
	} else {
		c.stats.Record(elapsed)
	}
}

// post sends req and returns the response when the status is 200. The
// caller closes the body.
func (c *ClaudeClient) post(ctx context.Context, req anthropicRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("claude api: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header),
			Message:    string(respBody),
		}
	}
	return nil, fmt.Errorf("claude api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
}

func (c *ClaudeClient) call(ctx context.Context, system string, messages []Message) (string, error) {
	resp, err := c.post(ctx, anthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
		System:    system,
		Messages:  messages,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if apiResp.Error != nil {
		return "", fmt.Errorf("claude error: %s: %s", apiResp.Error.Type, apiResp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from claude")
	}
	return strings.TrimSpace(sb.String()), nil
}

// readStream parses the server-sent events of a streaming response. Only
// "data:" lines matter; the event type is repeated in the payload.
func readStream(body io.Reader, onText func(string) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				if err := onText(ev.Delta.Text); err != nil {
					return err
				}
			}
		case "error":
			if ev.Error != nil {
				return fmt.Errorf("claude error: %s: %s", ev.Error.Type, ev.Error.Message)
			}
			return fmt.Errorf("claude error: %s", truncate(data, 200))
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("claude stream ended before message_stop")
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}
