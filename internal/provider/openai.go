package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/internal/schema"
)

// ChatStreamer abstracts the OpenAI Chat Completions streaming API.
type ChatStreamer interface {
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk]
}

type chatServiceAdapter struct {
	svc *openai.ChatCompletionService
}

func (a *chatServiceAdapter) NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams) *ssestream.Stream[openai.ChatCompletionChunk] {
	return a.svc.NewStreaming(ctx, params)
}

// NewOpenAIClient builds a ChatStreamer backed by a new API client.
// Without options the client reads OPENAI_API_KEY from the environment.
func NewOpenAIClient(opts ...option.RequestOption) ChatStreamer {
	client := openai.NewClient(opts...)
	return &chatServiceAdapter{svc: &client.Chat.Completions}
}

// aggCall aggregates partial tool call deltas keyed by index.
type aggCall struct{ id, name, args string }

// OpenAI drives one turn against an OpenAI compatible Chat Completions API.
type OpenAI struct {
	streamer  ChatStreamer
	model     string
	maxTokens int64
}

var _ engine.Driver = (*OpenAI)(nil)

// NewOpenAI creates a driver for model that caps each response at maxTokens
// completion tokens.
func NewOpenAI(streamer ChatStreamer, model string, maxTokens int64) *OpenAI {
	return &OpenAI{streamer: streamer, model: model, maxTokens: maxTokens}
}

// Model returns the model id sent with every request.
func (d *OpenAI) Model() string { return d.model }

// RunTurn streams one completion and rebuilds it as an assistant message.
func (d *OpenAI) RunTurn(ctx context.Context, req engine.TurnRequest, obs engine.StreamObserver) (*conversation.Message, error) {
	params, err := d.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := d.streamer.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text         strings.Builder
		calls        = map[int64]*aggCall{}
		finishReason string
		usage        conversation.Usage
	)
	for stream.Next() {
		ck := stream.Current()
		if ck.Usage.PromptTokens > 0 || ck.Usage.CompletionTokens > 0 {
			// prompt_tokens includes the cached share.
			cached := ck.Usage.PromptTokensDetails.CachedTokens
			usage.InputTokens = ck.Usage.PromptTokens - cached
			usage.OutputTokens = ck.Usage.CompletionTokens
			usage.CacheReadInputTokens = cached
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				obs.OnStream(ch.Delta.Content)
			}
			for _, tc := range ch.Delta.ToolCalls {
				ac, ok := calls[tc.Index]
				if !ok {
					ac = &aggCall{}
					calls[tc.Index] = ac
				}
				if tc.ID != "" {
					ac.id = tc.ID
				}
				if tc.Function.Name != "" && ac.name == "" {
					ac.name = tc.Function.Name
					obs.OnToolUseStart(ac.name)
				}
				ac.args += tc.Function.Arguments
			}
			if ch.FinishReason != "" {
				finishReason = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if finishReason == "" {
		return nil, fmt.Errorf("stream ended without a finish reason: %w", io.ErrUnexpectedEOF)
	}

	msg := &conversation.Message{
		Model:      d.model,
		StopReason: mapFinishReason(finishReason),
		Usage:      usage,
	}
	if text.Len() > 0 {
		msg.Content = append(msg.Content, conversation.TextBlock(text.String()))
	}

	indexes := make([]int64, 0, len(calls))
	for i := range calls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })
	for _, i := range indexes {
		ac := calls[i]
		// Malformed arguments are kept so the executor reports them back.
		msg.Content = append(msg.Content, conversation.ToolUseBlock(ac.id, ac.name, json.RawMessage(ac.args)))
	}
	return msg, nil
}

func mapFinishReason(reason string) conversation.StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return conversation.StopToolUse
	case "stop":
		return conversation.StopEndTurn
	case "length":
		return conversation.StopMaxTokens
	default:
		return conversation.StopReason(reason)
	}
}

func (d *OpenAI) buildParams(req engine.TurnRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    d.model,
		Messages: toOpenAIMessages(req.System, req.Turns),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if d.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(d.maxTokens)
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			parameters, err := schema.ToOpenAI(t.InputSchema)
			if err != nil {
				return params, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			fn := openai.FunctionDefinitionParam{Name: t.Name, Parameters: parameters}
			if t.Description != "" {
				fn.Description = openai.String(t.Description)
			}
			tools = append(tools, openai.ChatCompletionToolParam{Type: "function", Function: fn})
		}
		params.Tools = tools
	}
	return params, nil
}

// toOpenAIMessages replays the transcript. Tool results become tool role
// messages placed directly after the assistant message that requested them.
func toOpenAIMessages(system string, turns []conversation.Turn) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}

	for i, turn := range turns {
		if turn.Role == conversation.RoleAssistant {
			msgs = append(msgs, assistantMessage(turn, conversation.AnsweredToolUses(turns, i)))
			continue
		}

		var texts []string
		for _, b := range turn.Content {
			switch b.Type {
			case conversation.BlockToolResult:
				msgs = append(msgs, openai.ToolMessage(b.Content, b.ToolUseID))
			case conversation.BlockText:
				texts = append(texts, b.Text)
			}
		}
		if len(texts) > 0 {
			msgs = append(msgs, openai.UserMessage(strings.Join(texts, "\n")))
		}
	}
	return msgs
}

func assistantMessage(turn conversation.Turn, answered map[string]bool) openai.ChatCompletionMessageParamUnion {
	var (
		texts []string
		calls []openai.ChatCompletionMessageToolCallParam
	)
	for _, b := range turn.Content {
		switch {
		case b.Type == conversation.BlockText:
			texts = append(texts, b.Text)
		case b.Type == conversation.BlockToolUse && answered[b.ID]:
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID:   b.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		case b.Type == conversation.BlockToolUse:
			texts = append(texts, conversation.DescribeToolUse(b))
		}
	}
	text := strings.Join(texts, "\n")

	if len(calls) == 0 {
		return openai.AssistantMessage(text)
	}
	param := &openai.ChatCompletionAssistantMessageParam{Role: "assistant", ToolCalls: calls}
	if text != "" {
		param.Content.OfString = openai.String(text)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: param}
}
