package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/line-gemini-relay/internal/gate"
	"github.com/wolfman30/line-gemini-relay/internal/line"
	"github.com/wolfman30/line-gemini-relay/internal/llm"
	"github.com/wolfman30/line-gemini-relay/internal/observability/metrics"
	"github.com/wolfman30/line-gemini-relay/internal/session"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

var relayTracer = otel.Tracer("linebot.internal.relay")

const (
	defaultMaxConcurrency = 16
	defaultEventTimeout   = 60 * time.Second
	dedupProvider         = "line"
)

// Outcome is the terminal state of one inbound event.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
	OutcomeDelivered  Outcome = "delivered"
)

// SessionStore is the subset of the session store the relay needs.
type SessionStore interface {
	GetOrCreate(userID string) (*session.Session, bool)
	Touch(userID string, at time.Time)
	Len() int
}

// ConfidenceGate scores a question before it reaches the conversation.
type ConfidenceGate interface {
	Assess(ctx context.Context, question string) (gate.Assessment, error)
}

// Replier sends the answer back to the user.
type Replier interface {
	ReplyText(ctx context.Context, replyToken, text string) error
}

// EventDeduper claims webhook event ids so redeliveries are not answered twice.
type EventDeduper interface {
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Option configures a Relay.
type Option func(*Relay)

// WithGate enables the confidence gate. A nil gate leaves it disabled.
func WithGate(g ConfidenceGate) Option {
	return func(r *Relay) { r.gate = g }
}

// WithDeduper enables redelivery de-duplication.
func WithDeduper(d EventDeduper) Option {
	return func(r *Relay) { r.dedup = d }
}

// WithMetrics records outcomes and latencies.
func WithMetrics(m *metrics.RelayMetrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithClock overrides the time source used to touch sessions.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxConcurrency bounds how many events of one batch run at once.
func WithMaxConcurrency(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithEventTimeout bounds the model and reply calls made for one event.
func WithEventTimeout(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.eventTimeout = d
		}
	}
}

// Relay answers LINE text messages from a per-user Gemini conversation.
type Relay struct {
	store   SessionStore
	chat    llm.ChatModel
	replier Replier
	gate    ConfidenceGate
	dedup   EventDeduper
	metrics *metrics.RelayMetrics
	logger  *logging.Logger
	now     func() time.Time

	maxConcurrency int
	eventTimeout   time.Duration
}

// New creates a relay.
func New(store SessionStore, chat llm.ChatModel, replier Replier, logger *logging.Logger, opts ...Option) *Relay {
	if store == nil {
		panic("relay: session store cannot be nil")
	}
	if chat == nil {
		panic("relay: chat model cannot be nil")
	}
	if replier == nil {
		panic("relay: replier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Relay{
		store:          store,
		chat:           chat,
		replier:        replier,
		logger:         logger,
		now:            time.Now,
		maxConcurrency: defaultMaxConcurrency,
		eventTimeout:   defaultEventTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleBatch processes every event concurrently and waits for all of them.
// Outcomes are returned in event order. A failing event never affects its siblings.
func (r *Relay) HandleBatch(ctx context.Context, events []line.Event) []Outcome {
	outcomes := make([]Outcome, len(events))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for i := range events {
		i := i
		g.Go(func() error {
			outcomes[i] = r.HandleEvent(ctx, events[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// HandleEvent runs one event through the relay and returns its terminal state.
func (r *Relay) HandleEvent(ctx context.Context, ev line.Event) (outcome Outcome) {
	eventID := ev.WebhookEventID
	if eventID == "" {
		eventID = "local-" + uuid.NewString()
	}
	ctx, span := relayTracer.Start(ctx, "relay.handle_event", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.String("linebot.event.kind", ev.Kind()),
		attribute.String("linebot.event.id", eventID),
	)

	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("relay: panic handling event: %v", rec)
			span.RecordError(err)
			r.logger.Error("relay panic recovered", "error", err, "event_id", eventID)
			outcome = OutcomeFailed
		}
		span.SetAttributes(attribute.String("linebot.event.outcome", string(outcome)))
		r.metrics.ObserveEvent(ev.Kind(), string(outcome))
	}()

	if !ev.IsTextMessage() {
		return OutcomeIgnored
	}
	userID := strings.TrimSpace(ev.Source.UserID)
	question := strings.TrimSpace(ev.Message.Text)
	if userID == "" || ev.ReplyToken == "" || question == "" {
		r.logger.Debug("text message without user, reply token or text ignored", "event_id", eventID)
		return OutcomeIgnored
	}
	logger := r.logger.With("user", maskUserID(userID), "event_id", eventID)

	if r.dedup != nil {
		fresh, err := r.dedup.MarkProcessed(ctx, dedupProvider, ev.WebhookEventID)
		if err != nil {
			logger.Warn("event de-duplication unavailable", "error", err)
		} else if !fresh {
			logger.Info("redelivered event skipped", "redelivery", ev.DeliveryContext.IsRedelivery)
			return OutcomeDuplicate
		}
	}

	sess, created := r.store.GetOrCreate(userID)
	if created {
		r.metrics.ObserveSessionCreated()
		r.metrics.SetActiveSessions(r.store.Len())
		logger.Info("session created")
	}

	// One exchange at a time per user; concurrent messages queue here.
	sess.Lock()
	defer sess.Unlock()

	// The timeout covers the model and reply calls only, not the queueing above.
	ctx, cancel := context.WithTimeout(ctx, r.eventTimeout)
	defer cancel()

	if r.gate != nil {
		start := time.Now()
		assessment, err := r.gate.Assess(ctx, question)
		r.metrics.ObserveModelLatency("gate", time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			logger.Error("confidence check failed", "error", err)
			return OutcomeFailed
		}
		r.metrics.ObserveConfidence(assessment.Score)
		span.SetAttributes(attribute.Int("linebot.gate.score", assessment.Score))
		if !assessment.Confident() {
			logger.Info("low confidence, reply suppressed", "score", assessment.Score, "parsed", assessment.Parsed, "threshold", assessment.Threshold)
			return OutcomeSuppressed
		}
		logger.Info("high confidence", "score", assessment.Score)
	}

	start := time.Now()
	answer, err := r.chat.SendMessage(ctx, sess.History(), question)
	r.metrics.ObserveModelLatency("chat", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		logger.Error("model exchange failed", "error", err)
		return OutcomeFailed
	}
	sess.AppendExchange(question, answer)
	r.store.Touch(userID, r.now())

	if err := r.replier.ReplyText(ctx, ev.ReplyToken, answer); err != nil {
		span.RecordError(err)
		r.metrics.ObserveReply("error")
		logger.Error("reply dispatch failed", "error", err, "status", line.StatusCode(err))
		return OutcomeFailed
	}
	r.metrics.ObserveReply("ok")
	logger.Info("reply delivered", "history_turns", len(sess.History()))
	return OutcomeDelivered
}

func maskUserID(userID string) string {
	if len(userID) <= 6 {
		return userID
	}
	return "..." + userID[len(userID)-6:]
}
