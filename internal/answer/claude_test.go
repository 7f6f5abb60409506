package answer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(t *testing.T, h http.HandlerFunc) (*ClaudeClient, *LLMStats) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	stats := NewLLMStats(time.Hour)
	c := NewClaudeClient("test-key", "test-model", stats, nil)
	c.url = srv.URL
	c.backoff = func(int) time.Duration { return time.Millisecond }
	return c, stats
}

func TestClaudeComplete(t *testing.T) {
	var got anthropicRequest
	c, stats := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"  Alpha uses Go. [1]\n"}]}`))
	})

	msgs := []Message{{Role: RoleUser, Content: "What does Alpha use?"}}
	text, err := c.Complete(context.Background(), "system prompt", msgs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Alpha uses Go. [1]" {
		t.Errorf("unexpected text %q", text)
	}
	if got.Model != "test-model" || got.System != "system prompt" || len(got.Messages) != 1 {
		t.Errorf("unexpected request %+v", got)
	}
	if snap := stats.Snapshot(); snap.Count != 1 || snap.Failures != 0 {
		t.Errorf("expected one successful sample, got %+v", snap)
	}
}

func TestClaudeRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"type":"rate_limit_error","message":"slow down"}}`))
			return
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
	})

	text, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Errorf("expected success on second call, got %q after %d calls", text, calls.Load())
	}
}

func TestClaudeGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c, stats := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if calls.Load() != MaxRetries {
		t.Errorf("expected %d calls, got %d", MaxRetries, calls.Load())
	}
	if snap := stats.Snapshot(); snap.Failures != 1 {
		t.Errorf("expected one failure sample, got %+v", snap)
	}
}

func TestClaudeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad"}}`))
	})

	_, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || IsRetryable(err) {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestClaudeEmptyResponse(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	})
	if _, err := c.Complete(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestClaudeCancelledDuringBackoff(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	c.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Complete(ctx, "", []Message{{Role: RoleUser, Content: "hi"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

const sseReply = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","role":"assistant"}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: ping
data: {"type":"ping"}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Alpha "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"uses Go."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: message_stop
data: {"type":"message_stop"}

`

func TestClaudeStream(t *testing.T) {
	var got anthropicRequest
	var calls atomic.Int32
	c, stats := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sseReply))
	})

	var deltas []string
	err := c.Stream(context.Background(), "system prompt", []Message{{Role: RoleUser, Content: "hi"}}, func(s string) error {
		deltas = append(deltas, s)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Stream || got.System != "system prompt" {
		t.Errorf("unexpected request %+v", got)
	}
	if strings.Join(deltas, "|") != "Alpha |uses Go." {
		t.Errorf("unexpected deltas %q", deltas)
	}
	if calls.Load() != 2 {
		t.Errorf("expected the 503 to be retried, got %d calls", calls.Load())
	}
	if snap := stats.Snapshot(); snap.Count != 1 || snap.Failures != 0 {
		t.Errorf("expected one successful sample, got %+v", snap)
	}
}

func TestClaudeStreamErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"error event",
			"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n",
			"overloaded_error",
		},
		{
			"truncated",
			"data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"par\"}}\n\n",
			"before message_stop",
		},
		{"garbage", "data: {not json\n\n", "decode stream event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, stats := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			err := c.Stream(context.Background(), "", nil, func(string) error { return nil })
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if snap := stats.Snapshot(); snap.Failures != 1 {
				t.Errorf("expected one failure, got %+v", snap)
			}
		})
	}
}

func TestClaudeStreamStopsWhenCallbackFails(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sseReply))
	})
	stop := errors.New("client gone")
	n := 0
	err := c.Stream(context.Background(), "", nil, func(string) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Fatalf("expected to stop after the first delta, got err=%v after %d deltas", err, n)
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		if d < base || d >= base+base/2 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v)", attempt, d, base, base+base/2)
		}
	}
	if d := Backoff(10); d > 45*time.Second {
		t.Errorf("backoff not capped: %v", d)
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	short := func(int) time.Duration { return time.Second }

	err := &RetryableError{StatusCode: http.StatusTooManyRequests, RetryAfter: 5 * time.Second}
	if d := retryDelay(err, 0, short); d != 5*time.Second {
		t.Errorf("expected server wait of 5s, got %v", d)
	}

	err.RetryAfter = 10 * time.Minute
	if d := retryDelay(err, 0, short); d != maxRetryAfter {
		t.Errorf("expected wait capped at %v, got %v", maxRetryAfter, d)
	}

	err.RetryAfter = 0
	if d := retryDelay(err, 0, short); d != time.Second {
		t.Errorf("expected computed backoff, got %v", d)
	}
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	if d := parseRetryAfter(h); d != 0 {
		t.Errorf("missing header: got %v", d)
	}
	h.Set("Retry-After", "7")
	if d := parseRetryAfter(h); d != 7*time.Second {
		t.Errorf("expected 7s, got %v", d)
	}
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	if d := parseRetryAfter(h); d != 0 {
		t.Errorf("http-date form is ignored, got %v", d)
	}
}
