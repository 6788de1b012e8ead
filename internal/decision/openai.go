package decision

import (
	"context"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"agentarena/internal/config"
)

// OpenAIEngine drives a turn through the chat completions tool-call loop.
type OpenAIEngine struct {
	client openai.Client
	model  openai.ChatModel
	cfg    config.DecisionConfig
	spacer *callSpacer
	logger *zap.Logger
}

func NewOpenAIEngine(apiKey, model string, cfg config.DecisionConfig, logger *zap.Logger) *OpenAIEngine {
	return &OpenAIEngine{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModel(model),
		cfg:    cfg,
		spacer: newCallSpacer(cfg.CallSpacing),
		logger: logger,
	}
}

func openaiTools() []openai.ChatCompletionToolUnionParam {
	specs := toolSpecs()
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": spec.Properties,
		}
		if len(spec.Required) > 0 {
			params["required"] = spec.Required
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openai.String(spec.Description),
			Parameters:  params,
		}))
	}
	return out
}

func (e *OpenAIEngine) ExecuteTurn(ctx context.Context, turn TurnContext, tools Toolbox) error {
	params := openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(renderTurn(turn)),
		},
		Tools:               openaiTools(),
		MaxCompletionTokens: openai.Int(maxTokens(e.cfg)),
	}

	for i := 0; i < maxIterations(e.cfg); i++ {
		if err := e.spacer.Wait(ctx); err != nil {
			return err
		}

		completion, err := e.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return err
		}
		if len(completion.Choices) == 0 {
			return nil
		}

		msg := completion.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return nil
		}

		params.Messages = append(params.Messages, msg.ToParam())
		for _, call := range msg.ToolCalls {
			res := dispatchTool(ctx, tools, call.Function.Name, []byte(call.Function.Arguments))
			if e.logger != nil {
				e.logger.Debug("tool call",
					zap.String("agent_id", turn.AgentID),
					zap.String("tool", call.Function.Name),
					zap.Bool("success", res.Success))
			}
			params.Messages = append(params.Messages, openai.ToolMessage(encodeResult(res), call.ID))
		}
	}

	if e.logger != nil {
		e.logger.Warn("turn hit iteration cap", zap.String("agent_id", turn.AgentID))
	}
	return nil
}
