package line

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) *Client {
	t.Helper()
	if cfg.AccessToken == "" {
		cfg.AccessToken = "token-123"
	}
	if cfg.ChannelSecret == "" {
		cfg.ChannelSecret = "secret-xyz"
	}
	cfg.BaseURL = server.URL
	cfg.HTTPClient = server.Client()
	cfg.Logger = logging.New("error")
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Millisecond
	}
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestReplyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/reply" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
			t.Fatalf("unexpected auth header %q", got)
		}
		var body replyRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.ReplyToken != "rt-1" {
			t.Fatalf("unexpected reply token %q", body.ReplyToken)
		}
		if len(body.Messages) != 1 || body.Messages[0].Type != "text" || body.Messages[0].Text != "สวัสดีค่ะ" {
			t.Fatalf("unexpected messages %#v", body.Messages)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if err := client.ReplyText(context.Background(), "rt-1", "สวัสดีค่ะ"); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func TestReplyTextValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("no request expected")
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if err := client.ReplyText(context.Background(), "", "hi"); err == nil {
		t.Fatalf("expected reply token validation error")
	}
	if err := client.ReplyText(context.Background(), "rt", "  "); err == nil {
		t.Fatalf("expected text validation error")
	}
}

func TestReplyTextAPIError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 2})
	err := client.ReplyText(context.Background(), "expired", "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid reply token") {
		t.Fatalf("unexpected error %v", err)
	}
	if StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", StatusCode(err))
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls)
	}
}

func TestReplyTextRetriesServerErrorsWhenConfigured(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{MaxRetries: 1})
	if err := client.ReplyText(context.Background(), "rt", "hello"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestReplyTextNoRetryByDefault(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	if err := client.ReplyText(context.Background(), "rt", "hello"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestReplyTextTruncatesLongMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body replyRequest
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n := len([]rune(body.Messages[0].Text)); n != MaxTextLength {
			t.Fatalf("expected %d runes, got %d", MaxTextLength, n)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server, Config{})
	long := strings.Repeat("ดอกไม้", 2000)
	if err := client.ReplyText(context.Background(), "rt", long); err != nil {
		t.Fatalf("reply: %v", err)
	}
}

func TestNewClientDefaultsAndValidation(t *testing.T) {
	if _, err := New(Config{ChannelSecret: "s"}); err == nil {
		t.Fatalf("expected access token validation error")
	}
	if _, err := New(Config{AccessToken: "t"}); err == nil {
		t.Fatalf("expected channel secret validation error")
	}
	client, err := New(Config{AccessToken: "t", ChannelSecret: "s", MaxRetries: -3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if client.baseURL != defaultBaseURL {
		t.Fatalf("expected default base url, got %s", client.baseURL)
	}
	if client.httpClient.Timeout != 10*time.Second {
		t.Fatalf("expected default timeout")
	}
	if client.maxRetries != 0 {
		t.Fatalf("expected negative retries to clamp to 0")
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"destination":"U0","events":[]}`)
	sig := Sign("secret-xyz", body)

	if err := VerifySignature("secret-xyz", body, sig); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if err := VerifySignature("other-secret", body, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := VerifySignature("secret-xyz", append(body, ' '), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected tampered body to fail, got %v", err)
	}
	if err := VerifySignature("secret-xyz", body, "not base64!"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected decode failure, got %v", err)
	}
	if err := VerifySignature("secret-xyz", body, ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected missing signature failure, got %v", err)
	}
}

func TestParseCallback(t *testing.T) {
	body := []byte(`{
		"destination": "Ubot",
		"events": [
			{"type":"message","replyToken":"rt-1","webhookEventId":"01H1","deliveryContext":{"isRedelivery":false},
			 "source":{"type":"user","userId":"Ua"},"timestamp":1700000000000,
			 "message":{"id":"1","type":"text","text":"ราคาจี้ดอกไม้เท่าไหร่"}},
			{"type":"message","replyToken":"rt-2","webhookEventId":"01H2","deliveryContext":{"isRedelivery":true},
			 "source":{"type":"user","userId":"Ub"},"message":{"id":"2","type":"sticker"}},
			{"type":"follow","replyToken":"rt-3","source":{"type":"user","userId":"Uc"}}
		]
	}`)
	req, err := ParseCallback(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(req.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(req.Events))
	}
	if !req.Events[0].IsTextMessage() || req.Events[0].Message.Text != "ราคาจี้ดอกไม้เท่าไหร่" {
		t.Fatalf("expected text message event, got %#v", req.Events[0])
	}
	if req.Events[1].IsTextMessage() || req.Events[1].Kind() != "message.sticker" || !req.Events[1].DeliveryContext.IsRedelivery {
		t.Fatalf("unexpected sticker event %#v", req.Events[1])
	}
	if req.Events[2].IsTextMessage() || req.Events[2].Kind() != "follow" {
		t.Fatalf("unexpected follow event %#v", req.Events[2])
	}

	if _, err := ParseCallback([]byte(`{"destination":"U"}`)); err == nil {
		t.Fatalf("expected missing events error")
	}
	if _, err := ParseCallback([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}
