package messaging

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/line-gemini-relay/internal/line"
	"github.com/wolfman30/line-gemini-relay/internal/relay"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

var lineWebhookTracer = otel.Tracer("linebot.internal.messaging.line")

const maxWebhookBody = 1 << 20

// HealthText is the body served on the root liveness route.
const HealthText = "Bot is running!"

type batchRelay interface {
	HandleBatch(ctx context.Context, events []line.Event) []relay.Outcome
}

// Handler handles LINE webhook requests.
type Handler struct {
	channelSecret string
	relay         batchRelay
	logger        *logging.Logger
}

// NewHandler creates a new messaging handler.
func NewHandler(channelSecret string, relay batchRelay, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if relay == nil {
		panic("messaging: relay cannot be nil")
	}
	return &Handler{
		channelSecret: channelSecret,
		relay:         relay,
		logger:        logger,
	}
}

// LineWebhook handles POST /webhook requests. The batch is processed before
// the acknowledgement is written; per-event failures never change the status.
func (h *Handler) LineWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := lineWebhookTracer.Start(r.Context(), "messaging.line.webhook")
	defer span.End()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read line webhook body", "error", err)
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}

	if err := line.VerifySignature(h.channelSecret, body, r.Header.Get(line.SignatureHeader)); err != nil {
		h.logger.Warn("invalid line signature")
		span.RecordError(err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	callback, err := line.ParseCallback(body)
	if err != nil {
		h.logger.Error("failed to parse line webhook", "error", err)
		span.RecordError(err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("linebot.webhook.events", len(callback.Events)))

	// Events outlive a dropped webhook connection; each one is bounded by the relay's event timeout.
	start := time.Now()
	outcomes := h.relay.HandleBatch(context.WithoutCancel(ctx), callback.Events)

	counts := make(map[relay.Outcome]int, len(outcomes))
	for _, o := range outcomes {
		counts[o]++
	}
	h.logger.Info("line webhook processed",
		"events", len(callback.Events),
		"delivered", counts[relay.OutcomeDelivered],
		"suppressed", counts[relay.OutcomeSuppressed],
		"failed", counts[relay.OutcomeFailed],
		"ignored", counts[relay.OutcomeIgnored],
		"duplicate", counts[relay.OutcomeDuplicate],
		"duration_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// HealthCheck returns a simple health check response.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root answers GET / with a plain liveness banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthText))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
