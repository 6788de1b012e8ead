package decision

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"agentarena/internal/config"
)

// AnthropicEngine drives a turn through the Messages API tool-use loop.
type AnthropicEngine struct {
	client anthropic.Client
	model  anthropic.Model
	cfg    config.DecisionConfig
	spacer *callSpacer
	logger *zap.Logger
}

func NewAnthropicEngine(apiKey, model string, cfg config.DecisionConfig, logger *zap.Logger) *AnthropicEngine {
	return &AnthropicEngine{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
		cfg:    cfg,
		spacer: newCallSpacer(cfg.CallSpacing),
		logger: logger,
	}
}

func anthropicTools() []anthropic.ToolUnionParam {
	specs := toolSpecs()
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: spec.Properties,
					Required:   spec.Required,
				},
			},
		})
	}
	return out
}

func (e *AnthropicEngine) ExecuteTurn(ctx context.Context, turn TurnContext, tools Toolbox) error {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(renderTurn(turn))),
	}
	toolParams := anthropicTools()

	for i := 0; i < maxIterations(e.cfg); i++ {
		if err := e.spacer.Wait(ctx); err != nil {
			return err
		}

		msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     e.model,
			MaxTokens: maxTokens(e.cfg),
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:  messages,
			Tools:     toolParams,
		})
		if err != nil {
			return err
		}

		var results []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch v := block.AsAny().(type) {
			case anthropic.ToolUseBlock:
				res := dispatchTool(ctx, tools, v.Name, []byte(v.JSON.Input.Raw()))
				if e.logger != nil {
					e.logger.Debug("tool call",
						zap.String("agent_id", turn.AgentID),
						zap.String("tool", v.Name),
						zap.Bool("success", res.Success))
				}
				results = append(results, anthropic.NewToolResultBlock(v.ID, encodeResult(res), !res.Success))
			}
		}

		// No tool use means the model ended its turn.
		if len(results) == 0 {
			return nil
		}
		messages = append(messages, msg.ToParam())
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	if e.logger != nil {
		e.logger.Warn("turn hit iteration cap", zap.String("agent_id", turn.AgentID))
	}
	return nil
}
