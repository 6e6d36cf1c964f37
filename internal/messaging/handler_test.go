package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/line-gemini-relay/internal/line"
	"github.com/wolfman30/line-gemini-relay/internal/relay"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

const testSecret = "channel-secret"

type recordingRelay struct {
	mu      sync.Mutex
	batches [][]line.Event
	ctxErr  error
}

func (r *recordingRelay) HandleBatch(ctx context.Context, events []line.Event) []relay.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	r.ctxErr = ctx.Err()
	out := make([]relay.Outcome, len(events))
	for i, ev := range events {
		if ev.IsTextMessage() {
			out[i] = relay.OutcomeFailed
		} else {
			out[i] = relay.OutcomeIgnored
		}
	}
	return out
}

func signedRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(line.SignatureHeader, line.Sign(testSecret, []byte(body)))
	return req
}

const batchBody = `{"destination":"Ubot","events":[
	{"type":"message","replyToken":"rt-a","webhookEventId":"e1","source":{"type":"user","userId":"Ua"},
	 "message":{"id":"1","type":"text","text":"ราคาจี้ดอกไม้เท่าไหร่"}},
	{"type":"message","replyToken":"rt-b","webhookEventId":"e2","source":{"type":"user","userId":"Ub"},
	 "message":{"id":"2","type":"sticker"}}
]}`

func TestLineWebhookAcknowledgesEvenWhenEventsFail(t *testing.T) {
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	w := httptest.NewRecorder()
	h.LineWebhook(w, signedRequest(batchBody))

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]bool
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp["success"])

	require.Len(t, rel.batches, 1)
	require.Len(t, rel.batches[0], 2)
	assert.Equal(t, "rt-a", rel.batches[0][0].ReplyToken)
	assert.NoError(t, rel.ctxErr)
}

func TestLineWebhookRejectsBadSignature(t *testing.T) {
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	req := signedRequest(batchBody)
	req.Header.Set(line.SignatureHeader, line.Sign("wrong-secret", []byte(batchBody)))
	w := httptest.NewRecorder()
	h.LineWebhook(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, rel.batches)

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(batchBody))
	w = httptest.NewRecorder()
	h.LineWebhook(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLineWebhookMalformedBatch(t *testing.T) {
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	w := httptest.NewRecorder()
	h.LineWebhook(w, signedRequest(`{"destination":"Ubot","events":"nope"}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])
	assert.Empty(t, rel.batches)
}

func TestLineWebhookEmptyBatchVerification(t *testing.T) {
	// LINE's console "Verify" button posts an empty events array.
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	w := httptest.NewRecorder()
	h.LineWebhook(w, signedRequest(`{"destination":"Ubot","events":[]}`))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLineWebhookIgnoresClientCancellation(t *testing.T) {
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := signedRequest(batchBody).WithContext(ctx)
	w := httptest.NewRecorder()
	h.LineWebhook(w, req)

	require.Len(t, rel.batches, 1)
	assert.NoError(t, rel.ctxErr)
}

func TestHealthEndpointsAreStatic(t *testing.T) {
	rel := &recordingRelay{}
	h := NewHandler(testSecret, rel, logging.New("error"))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		h.Root(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, HealthText, w.Body.String())

		w = httptest.NewRecorder()
		h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	}
	assert.Empty(t, rel.batches)
}
