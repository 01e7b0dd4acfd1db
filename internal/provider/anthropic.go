package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/internal/schema"
)

// MessageStreamer abstracts the Anthropic Messages API so the driver can be
// tested with a mock. Production code passes the real client.Messages.
type MessageStreamer interface {
	NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

// messageServiceAdapter wraps the real anthropic.MessageService to implement MessageStreamer.
type messageServiceAdapter struct {
	svc *anthropic.MessageService
}

func (a *messageServiceAdapter) NewStreaming(ctx context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	return a.svc.NewStreaming(ctx, params)
}

// NewMessageStreamer wraps a real anthropic.MessageService as a MessageStreamer.
func NewMessageStreamer(svc *anthropic.MessageService) MessageStreamer {
	return &messageServiceAdapter{svc: svc}
}

// NewAnthropicClient builds a MessageStreamer backed by a new API client.
// Without options the client reads ANTHROPIC_API_KEY from the environment.
func NewAnthropicClient(opts ...option.RequestOption) MessageStreamer {
	client := anthropic.NewClient(opts...)
	return NewMessageStreamer(&client.Messages)
}

// Anthropic drives one turn against the Anthropic Messages API.
type Anthropic struct {
	streamer  MessageStreamer
	model     string
	maxTokens int64
}

var _ engine.Driver = (*Anthropic)(nil)

// NewAnthropic creates a driver for model that caps each response at
// maxTokens output tokens.
func NewAnthropic(streamer MessageStreamer, model string, maxTokens int64) *Anthropic {
	return &Anthropic{streamer: streamer, model: model, maxTokens: maxTokens}
}

// Model returns the model id sent with every request.
func (d *Anthropic) Model() string { return d.model }

// RunTurn streams one assistant message, forwarding text deltas and tool
// block starts to obs as they arrive.
func (d *Anthropic) RunTurn(ctx context.Context, req engine.TurnRequest, obs engine.StreamObserver) (*conversation.Message, error) {
	params, err := d.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := d.streamer.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	stopped := false
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate: %w", err)
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				obs.OnToolUseStart(event.ContentBlock.Name)
			}
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				obs.OnStream(event.Delta.Text)
			}
		case "message_stop":
			stopped = true
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if !stopped {
		return nil, fmt.Errorf("stream ended before message_stop: %w", io.ErrUnexpectedEOF)
	}

	return fromAnthropicMessage(msg), nil
}

func (d *Anthropic) buildParams(req engine.TurnRequest) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(d.model),
		MaxTokens: d.maxTokens,
		Messages:  toAnthropicMessages(req.Turns),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			inputSchema, err := schema.ToAnthropic(t.InputSchema)
			if err != nil {
				return params, fmt.Errorf("tool %s: %w", t.Name, err)
			}
			tp := &anthropic.ToolParam{Name: t.Name, InputSchema: inputSchema}
			if t.Description != "" {
				tp.Description = anthropic.String(t.Description)
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: tp})
		}
		params.Tools = tools
	}
	return params, nil
}

// toAnthropicMessages replays the transcript. Tool uses that were never
// answered with a tool_result are rendered as text, since the API rejects
// dangling tool_use blocks.
func toAnthropicMessages(turns []conversation.Turn) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(turns))
	for i, turn := range turns {
		var blocks []anthropic.ContentBlockParamUnion

		switch turn.Role {
		case conversation.RoleAssistant:
			answered := conversation.AnsweredToolUses(turns, i)
			for _, b := range turn.Content {
				switch {
				case b.Type == conversation.BlockText && b.Text != "":
					blocks = append(blocks, anthropic.NewTextBlock(b.Text))
				case b.Type == conversation.BlockToolUse && answered[b.ID]:
					blocks = append(blocks, anthropic.NewToolUseBlock(b.ID, b.Input, b.Name))
				case b.Type == conversation.BlockToolUse:
					blocks = append(blocks, anthropic.NewTextBlock(conversation.DescribeToolUse(b)))
				}
			}
			if len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock("(no output)"))
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))

		default:
			for _, b := range turn.Content {
				switch b.Type {
				case conversation.BlockText:
					if b.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(b.Text))
					}
				case conversation.BlockToolResult:
					blocks = append(blocks, toolResultParam(b))
				}
			}
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}
	return msgs
}

// toolResultParam omits the content of an empty result. The API rejects
// empty text blocks.
func toolResultParam(b conversation.Block) anthropic.ContentBlockParamUnion {
	if b.Content != "" {
		return anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError)
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &anthropic.ToolResultBlockParam{
		ToolUseID: b.ToolUseID,
		IsError:   anthropic.Bool(b.IsError),
	}}
}

func fromAnthropicMessage(msg anthropic.Message) *conversation.Message {
	out := &conversation.Message{
		Model:      string(msg.Model),
		StopReason: conversation.StopReason(msg.StopReason),
		Usage: conversation.Usage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
		},
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, conversation.TextBlock(block.AsText().Text))
		case "tool_use":
			tu := block.AsToolUse()
			out.Content = append(out.Content, conversation.ToolUseBlock(tu.ID, tu.Name, json.RawMessage(tu.Input)))
		}
	}
	return out
}
