package bootstrap

import (
	"fmt"
	"strings"

	appconfig "github.com/wolfman30/line-gemini-relay/internal/config"
	"github.com/wolfman30/line-gemini-relay/internal/events"
	"github.com/wolfman30/line-gemini-relay/internal/gate"
	"github.com/wolfman30/line-gemini-relay/internal/knowledge"
	"github.com/wolfman30/line-gemini-relay/internal/llm"
	"github.com/wolfman30/line-gemini-relay/internal/observability/metrics"
	"github.com/wolfman30/line-gemini-relay/internal/relay"
	"github.com/wolfman30/line-gemini-relay/internal/session"
	"github.com/wolfman30/line-gemini-relay/pkg/logging"
)

// BuildContextProvider loads the business profile from CONTEXT_PROFILE_PATH,
// falling back to the built-in profile when no path is set.
func BuildContextProvider(cfg *appconfig.Config, logger *logging.Logger) (*knowledge.StaticProvider, error) {
	if logger == nil {
		logger = logging.Default()
	}
	profile := knowledge.DefaultProfile()
	if cfg != nil {
		if path := strings.TrimSpace(cfg.ContextProfilePath); path != "" {
			loaded, err := knowledge.LoadProfile(path)
			if err != nil {
				return nil, fmt.Errorf("bootstrap: load context profile: %w", err)
			}
			profile = loaded
			logger.Info("context profile loaded", "path", path)
		}
	}
	provider, err := knowledge.NewStaticProvider(profile)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: render context: %w", err)
	}
	return provider, nil
}

// BuildSessionPolicies maps the configured TTLs onto the two expiry sweeps.
func BuildSessionPolicies(cfg *appconfig.Config) []session.Policy {
	if cfg == nil {
		return session.DefaultPolicies()
	}
	return []session.Policy{
		{Name: session.PolicyInactivity, Interval: cfg.SessionInactivitySweep, MaxIdle: cfg.SessionInactivityTTL},
		{Name: session.PolicyRetention, Interval: cfg.SessionRetentionSweep, MaxIdle: cfg.SessionRetentionTTL},
	}
}

// RelayDeps are the collaborators BuildRelay wires together.
type RelayDeps struct {
	Store   relay.SessionStore
	Chat    llm.ChatModel
	Scorer  llm.Generator
	Context knowledge.Provider
	Replier relay.Replier
	Deduper *events.ProcessedStore
	Metrics *metrics.RelayMetrics
	Config  *appconfig.Config
	Logger  *logging.Logger
}

// BuildRelay assembles the relay. The confidence gate is attached only when enabled.
func BuildRelay(deps RelayDeps) (*relay.Relay, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	opts := []relay.Option{
		relay.WithMetrics(deps.Metrics),
		relay.WithMaxConcurrency(deps.Config.RelayMaxConcurrency),
		relay.WithEventTimeout(deps.Config.RelayEventTimeout),
	}
	if deps.Config.ConfidenceGateEnabled {
		if deps.Scorer == nil || deps.Context == nil {
			return nil, fmt.Errorf("bootstrap: confidence gate needs a scorer and context provider")
		}
		g := gate.New(deps.Scorer, deps.Context, deps.Config.ConfidenceThreshold, deps.Logger)
		opts = append(opts, relay.WithGate(g))
		deps.Logger.Info("confidence gate enabled", "threshold", g.Threshold())
	} else {
		deps.Logger.Warn("confidence gate disabled; every text message will be answered")
	}
	if deps.Deduper != nil {
		opts = append(opts, relay.WithDeduper(deps.Deduper))
		deps.Logger.Info("event de-duplication enabled", "ttl", deps.Config.EventDedupTTL)
	}
	return relay.New(deps.Store, deps.Chat, deps.Replier, deps.Logger, opts...), nil
}
