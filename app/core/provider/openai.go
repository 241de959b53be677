package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	config "taskchat/app/configs"
	"taskchat/app/core/orchestrator/tools"
	"taskchat/app/pkg/types"
)

// ErrNotConfigured means no provider credential is present. The agent treats
// it as a permanent signal to stay on the heuristic path; it is never fatal.
var ErrNotConfigured = errors.New("llm provider is not configured")

// Turn is one prior conversation turn handed to the model.
type Turn struct {
	Role    string
	Content string
}

// ToolCall is one model-proposed invocation: a catalog name plus the raw
// argument JSON exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type Request struct {
	System      string
	History     []Turn
	UserMessage string
	Tools       []tools.Manifest
}

type Result struct {
	Text      string
	ToolCalls []ToolCall
}

// Client wraps one chat-completions endpoint. It is constructed once at
// startup via Configure and read-only afterwards.
type Client struct {
	api         openai.Client
	model       string
	timeout     time.Duration
	maxTokens   int64
	temperature float64
}

// Configure builds the client or reports ErrNotConfigured when the
// credential is missing. It is evaluated exactly once; callers record the
// outcome instead of retrying construction per request.
func Configure(cfg config.ProviderConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 200
	}

	return &Client{
		api:         openai.NewClient(opts...),
		model:       cfg.Model,
		timeout:     timeout,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Complete submits system prompt + ordered history + current message + the
// tool schema and returns the model's free text and any proposed tool calls.
// The call is bounded by the configured timeout; a timeout or transport
// failure surfaces as an error for the caller's fallback handling.
func (c *Client) Complete(ctx context.Context, req Request) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, turn := range req.History {
		if turn.Role == types.MessageRoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(req.UserMessage))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	}
	if len(req.Tools) > 0 {
		toolParams := make([]openai.ChatCompletionToolUnionParam, 0, len(req.Tools))
		for _, m := range req.Tools {
			toolParams = append(toolParams, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
				Name:        m.Name,
				Description: openai.String(m.Description),
				Parameters:  openai.FunctionParameters(m.Schema()),
			}))
		}
		params.Tools = toolParams
	}

	completion, err := c.api.Chat.Completions.New(callCtx, params)
	if err != nil {
		return Result{}, err
	}
	if len(completion.Choices) == 0 {
		return Result{}, errors.New("provider returned no choices")
	}

	msg := completion.Choices[0].Message
	out := Result{Text: msg.Content}
	for _, call := range msg.ToolCalls {
		if strings.TrimSpace(call.Function.Name) == "" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out, nil
}
