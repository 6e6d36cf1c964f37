package gate

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/line-gemini-relay/internal/knowledge"
	"github.com/wolfman30/line-gemini-relay/internal/llm"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

// DefaultThreshold is the minimum score a question needs before the bot answers it.
const DefaultThreshold = 80

var gateTracer = otel.Tracer("linebot.internal.gate")

// Assessment is the outcome of scoring one question.
type Assessment struct {
	Score     int
	Parsed    bool
	Raw       string
	Threshold int
}

// Confident reports whether the question may be answered. Unparsable scores never pass.
func (a Assessment) Confident() bool {
	return a.Parsed && a.Score >= a.Threshold
}

// ConfidenceGate asks the model, without any conversation state, how well the
// business context alone answers a question.
type ConfidenceGate struct {
	model     llm.Generator
	context   knowledge.Provider
	threshold int
	logger    *logging.Logger
}

// New creates a gate. A threshold outside 0-100 falls back to DefaultThreshold.
func New(model llm.Generator, provider knowledge.Provider, threshold int, logger *logging.Logger) *ConfidenceGate {
	if model == nil {
		panic("gate: model cannot be nil")
	}
	if provider == nil {
		panic("gate: context provider cannot be nil")
	}
	if threshold < 0 || threshold > 100 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfidenceGate{
		model:     model,
		context:   provider,
		threshold: threshold,
		logger:    logger,
	}
}

// Threshold returns the configured minimum score.
func (g *ConfidenceGate) Threshold() int {
	return g.threshold
}

// Assess scores the question. A model error is returned wrapped; an unparsable
// reply is not an error and yields a zero, non-confident assessment.
func (g *ConfidenceGate) Assess(ctx context.Context, question string) (Assessment, error) {
	ctx, span := gateTracer.Start(ctx, "gate.assess")
	defer span.End()

	raw, err := g.model.GenerateContent(ctx, BuildPrompt(g.context.Context(), question))
	if err != nil {
		span.RecordError(err)
		return Assessment{Threshold: g.threshold}, fmt.Errorf("gate: score request: %w", err)
	}

	score, ok := ParseScore(raw)
	assessment := Assessment{
		Score:     score,
		Parsed:    ok,
		Raw:       raw,
		Threshold: g.threshold,
	}
	span.SetAttributes(
		attribute.Int("linebot.gate.score", score),
		attribute.Bool("linebot.gate.parsed", ok),
		attribute.Bool("linebot.gate.confident", assessment.Confident()),
	)
	if !ok {
		g.logger.Warn("confidence score unparsable", "raw", truncate(raw, 64))
	}
	return assessment, nil
}

// BuildPrompt formats the scoring request sent to the model.
func BuildPrompt(businessContext, question string) string {
	var b strings.Builder
	b.WriteString("Given this specific business context:\n")
	b.WriteString(businessContext)
	b.WriteString("\n\nEvaluate if you can accurately answer this question: \"")
	b.WriteString(question)
	b.WriteString("\"\n")
	b.WriteString("Return only a number between 0-100 representing your confidence level based strictly on the information provided in the context above.")
	return b.String()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
