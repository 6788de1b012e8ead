package decision

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"agentarena/internal/config"
)

// Registry builds one engine per model binding so call spacing is shared by
// every agent on the same model.
type Registry struct {
	cfg    config.DecisionConfig
	logger *zap.Logger

	mu      sync.Mutex
	engines map[string]Engine
}

func NewRegistry(cfg config.DecisionConfig, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		engines: make(map[string]Engine),
	}
}

// EngineFor returns the engine for a model binding, constructing it on first
// use. A binding without a usable API key falls back to the rule engine so a
// misconfigured roster degrades instead of stalling the session.
func (r *Registry) EngineFor(binding config.ModelConfig) Engine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eng, ok := r.engines[binding.ID]; ok {
		return eng
	}
	eng := r.build(binding)
	r.engines[binding.ID] = eng
	return eng
}

func (r *Registry) build(binding config.ModelConfig) Engine {
	apiKey := ""
	if binding.APIKeyEnvVar != "" {
		apiKey = os.Getenv(binding.APIKeyEnvVar)
	}

	provider := strings.ToLower(strings.TrimSpace(binding.Provider))
	if provider != "rule" && apiKey == "" {
		if r.logger != nil {
			r.logger.Warn("model has no api key, using rule engine",
				zap.String("model_id", binding.ID),
				zap.String("env_var", binding.APIKeyEnvVar))
		}
		return NewRuleEngine(r.logger)
	}

	switch provider {
	case "anthropic":
		return NewAnthropicEngine(apiKey, binding.ID, r.cfg, r.logger)
	case "openai":
		return NewOpenAIEngine(apiKey, binding.ID, r.cfg, r.logger)
	case "rule":
		return NewRuleEngine(r.logger)
	default:
		if r.logger != nil {
			r.logger.Warn("unknown model provider, using rule engine",
				zap.String("model_id", binding.ID),
				zap.String("provider", binding.Provider))
		}
		return NewRuleEngine(r.logger)
	}
}
