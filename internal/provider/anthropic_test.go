package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armatrix/sandbox-agent/conversation"
	"github.com/armatrix/sandbox-agent/internal/engine"
)

// mockStreamer returns pre-built SSE responses for successive calls and
// records the params of each request.
type mockStreamer struct {
	mu        sync.Mutex
	responses []string
	params    []anthropic.MessageNewParams
}

func newMockStreamer(responses ...string) *mockStreamer {
	return &mockStreamer{responses: responses}
}

func (m *mockStreamer) NewStreaming(_ context.Context, params anthropic.MessageNewParams) *ssestream.Stream[anthropic.MessageStreamEventUnion] {
	m.mu.Lock()
	idx := len(m.params)
	m.params = append(m.params, params)
	m.mu.Unlock()

	if idx >= len(m.responses) {
		return ssestream.NewStream[anthropic.MessageStreamEventUnion](nil, fmt.Errorf("no more mock responses"))
	}

	resp := &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(m.responses[idx])),
		Header:     http.Header{},
	}
	return ssestream.NewStream[anthropic.MessageStreamEventUnion](ssestream.NewDecoder(resp), nil)
}

type recordingObserver struct {
	deltas []string
	tools  []string
}

func (o *recordingObserver) OnStream(delta string)      { o.deltas = append(o.deltas, delta) }
func (o *recordingObserver) OnToolUseStart(name string) { o.tools = append(o.tools, name) }

// --- SSE helpers ---

type sseEvent struct {
	Type string
	Data string
}

func buildSSE(events ...sseEvent) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Type, e.Data))
	}
	return sb.String()
}

func messageStart(model string, inputTokens int64) sseEvent {
	return sseEvent{
		Type: "message_start",
		Data: fmt.Sprintf(`{"type":"message_start","message":{"id":"msg_test","type":"message","role":"assistant","content":[],"model":"%s","stop_reason":null,"usage":{"input_tokens":%d,"output_tokens":0}}}`, model, inputTokens),
	}
}

func textBlockStart(index int) sseEvent {
	return sseEvent{
		Type: "content_block_start",
		Data: fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"text","text":""}}`, index),
	}
}

func textDelta(index int, text string) sseEvent {
	return sseEvent{
		Type: "content_block_delta",
		Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"text_delta","text":"%s"}}`, index, text),
	}
}

func blockStop(index int) sseEvent {
	return sseEvent{
		Type: "content_block_stop",
		Data: fmt.Sprintf(`{"type":"content_block_stop","index":%d}`, index),
	}
}

func toolUseStart(index int, id, name string) sseEvent {
	return sseEvent{
		Type: "content_block_start",
		Data: fmt.Sprintf(`{"type":"content_block_start","index":%d,"content_block":{"type":"tool_use","id":"%s","name":"%s","input":{}}}`, index, id, name),
	}
}

func inputJSONDelta(index int, partial string) sseEvent {
	return sseEvent{
		Type: "content_block_delta",
		Data: fmt.Sprintf(`{"type":"content_block_delta","index":%d,"delta":{"type":"input_json_delta","partial_json":"%s"}}`, index, partial),
	}
}

func messageDelta(stopReason string, outputTokens int64) sseEvent {
	return sseEvent{
		Type: "message_delta",
		Data: fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":"%s","stop_sequence":null},"usage":{"output_tokens":%d}}`, stopReason, outputTokens),
	}
}

func messageStop() sseEvent {
	return sseEvent{Type: "message_stop", Data: `{"type":"message_stop"}`}
}

// --- Tests ---

func TestAnthropic_TextTurn(t *testing.T) {
	sse := buildSSE(
		messageStart("claude-sonnet-4-5", 12),
		textBlockStart(0),
		textDelta(0, "Hello"),
		textDelta(0, " world"),
		blockStop(0),
		messageDelta("end_turn", 5),
		messageStop(),
	)
	streamer := newMockStreamer(sse)
	d := NewAnthropic(streamer, "claude-sonnet-4-5", 1024)
	obs := &recordingObserver{}

	conv := conversation.New("hi")
	msg, err := d.RunTurn(context.Background(), engine.TurnRequest{System: "be brief", Turns: conv.Turns()}, obs)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", msg.Text())
	assert.Equal(t, conversation.StopEndTurn, msg.StopReason)
	assert.Equal(t, int64(12), msg.Usage.InputTokens)
	assert.Equal(t, int64(5), msg.Usage.OutputTokens)
	assert.Equal(t, []string{"Hello", " world"}, obs.deltas)
	assert.Empty(t, obs.tools)

	require.Len(t, streamer.params, 1)
	p := streamer.params[0]
	assert.Equal(t, anthropic.Model("claude-sonnet-4-5"), p.Model)
	assert.Equal(t, int64(1024), p.MaxTokens)
	require.Len(t, p.System, 1)
	assert.Equal(t, "be brief", p.System[0].Text)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, p.Messages[0].Role)
	assert.Empty(t, p.Tools)
}

func TestAnthropic_ToolUseTurn(t *testing.T) {
	sse := buildSSE(
		messageStart("claude-sonnet-4-5", 20),
		textBlockStart(0),
		textDelta(0, "Reading."),
		blockStop(0),
		toolUseStart(1, "tu_1", "read_file"),
		inputJSONDelta(1, `{\"path\":`),
		inputJSONDelta(1, `\"/app/page.tsx\"}`),
		blockStop(1),
		toolUseStart(2, "tu_2", "list_files"),
		blockStop(2),
		messageDelta("tool_use", 30),
		messageStop(),
	)
	streamer := newMockStreamer(sse)
	d := NewAnthropic(streamer, "claude-sonnet-4-5", 1024)
	obs := &recordingObserver{}

	tools := []conversation.ToolDescriptor{{
		Name:        "read_file",
		Description: "Read a file",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
	}, {
		Name:        "list_files",
		InputSchema: json.RawMessage(`{}`),
	}}
	msg, err := d.RunTurn(context.Background(), engine.TurnRequest{Turns: conversation.New("go").Turns(), Tools: tools}, obs)
	require.NoError(t, err)

	assert.Equal(t, conversation.StopToolUse, msg.StopReason)
	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "tu_1", uses[0].ID)
	assert.Equal(t, "read_file", uses[0].Name)
	assert.JSONEq(t, `{"path":"/app/page.tsx"}`, string(uses[0].Input))
	assert.Equal(t, "list_files", uses[1].Name)
	assert.JSONEq(t, `{}`, string(uses[1].Input))
	assert.Equal(t, []string{"read_file", "list_files"}, obs.tools)

	p := streamer.params[0]
	require.Len(t, p.Tools, 2)
	require.NotNil(t, p.Tools[0].OfTool)
	assert.Equal(t, "read_file", p.Tools[0].OfTool.Name)
	assert.Equal(t, "Read a file", p.Tools[0].OfTool.Description.Value)
	assert.Equal(t, []string{"path"}, p.Tools[0].OfTool.InputSchema.Required)
	assert.False(t, p.Tools[1].OfTool.Description.Valid())
	assert.Empty(t, p.System)
}

func TestAnthropic_StreamError(t *testing.T) {
	d := NewAnthropic(newMockStreamer(), "claude-sonnet-4-5", 1024)
	_, err := d.RunTurn(context.Background(), engine.TurnRequest{Turns: conversation.New("hi").Turns()}, &recordingObserver{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no more mock responses")
}

func TestAnthropic_TruncatedStream(t *testing.T) {
	sse := buildSSE(
		messageStart("claude-sonnet-4-5", 12),
		textBlockStart(0),
		textDelta(0, "I will now"),
	)
	d := NewAnthropic(newMockStreamer(sse), "claude-sonnet-4-5", 1024)
	obs := &recordingObserver{}

	msg, err := d.RunTurn(context.Background(), engine.TurnRequest{Turns: conversation.New("hi").Turns()}, obs)
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, []string{"I will now"}, obs.deltas)
}

func TestAnthropic_BadToolSchema(t *testing.T) {
	streamer := newMockStreamer()
	d := NewAnthropic(streamer, "claude-sonnet-4-5", 1024)
	tools := []conversation.ToolDescriptor{{Name: "broken", InputSchema: json.RawMessage(`{"type":"string"}`)}}

	_, err := d.RunTurn(context.Background(), engine.TurnRequest{Tools: tools}, &recordingObserver{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool broken")
	assert.Empty(t, streamer.params, "no request is sent when a schema is rejected")
}

func TestToAnthropicMessages_ToolRoundTrip(t *testing.T) {
	conv := conversation.New("build it")
	conv.AppendAssistant(&conversation.Message{
		Content: []conversation.Block{
			conversation.TextBlock("Checking."),
			conversation.ToolUseBlock("tu_1", "list_files", json.RawMessage(`{"dir":"/app"}`)),
		},
		StopReason: conversation.StopToolUse,
	})
	require.NoError(t, conv.AppendToolResults([]conversation.Block{
		conversation.ToolResultBlock("tu_1", "page.tsx", false),
	}))

	msgs := toAnthropicMessages(conv.Turns())
	require.Len(t, msgs, 3)

	assistant := msgs[1]
	assert.Equal(t, anthropic.MessageParamRoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 2)
	require.NotNil(t, assistant.Content[0].OfText)
	assert.Equal(t, "Checking.", assistant.Content[0].OfText.Text)
	require.NotNil(t, assistant.Content[1].OfToolUse)
	assert.Equal(t, "tu_1", assistant.Content[1].OfToolUse.ID)
	assert.Equal(t, "list_files", assistant.Content[1].OfToolUse.Name)

	results := msgs[2]
	assert.Equal(t, anthropic.MessageParamRoleUser, results.Role)
	require.Len(t, results.Content, 1)
	require.NotNil(t, results.Content[0].OfToolResult)
	assert.Equal(t, "tu_1", results.Content[0].OfToolResult.ToolUseID)
}

func TestToAnthropicMessages_UnansweredToolUseBecomesText(t *testing.T) {
	conv := conversation.New("build it")
	conv.AppendAssistant(&conversation.Message{
		Content: []conversation.Block{
			conversation.ToolUseBlock("tu_1", "run_command", json.RawMessage(`{"cmd":"ls"}`)),
		},
		StopReason: conversation.StopToolUse,
	})
	conv.AppendUser(conversation.TextBlock("[Result: run_command]\nok\n\nContinue based on the tool results."))

	msgs := toAnthropicMessages(conv.Turns())
	require.Len(t, msgs, 3)

	assistant := msgs[1]
	require.Len(t, assistant.Content, 1)
	require.NotNil(t, assistant.Content[0].OfText)
	assert.Equal(t, `[Tool: run_command] {"cmd":"ls"}`, assistant.Content[0].OfText.Text)
	assert.Nil(t, assistant.Content[0].OfToolUse)
}

func TestToAnthropicMessages_EmptyAssistant(t *testing.T) {
	conv := conversation.New("hi")
	conv.AppendAssistant(&conversation.Message{StopReason: conversation.StopEndTurn})
	conv.AppendUser(conversation.TextBlock("again"))

	msgs := toAnthropicMessages(conv.Turns())
	require.Len(t, msgs, 3)
	require.Len(t, msgs[1].Content, 1)
	assert.Equal(t, "(no output)", msgs[1].Content[0].OfText.Text)
}

func TestToAnthropicMessages_EmptyToolResultHasNoTextBlock(t *testing.T) {
	conv := conversation.New("build it")
	call := conversation.ToolUseBlock("t1", "run_command", json.RawMessage(`{"command":"mkdir app"}`))
	conv.AppendAssistant(&conversation.Message{
		Content:    []conversation.Block{call},
		StopReason: conversation.StopToolUse,
	})
	require.NoError(t, conv.AppendToolResults([]conversation.Block{
		conversation.Ok("").ResultBlock(call),
	}))

	msgs := toAnthropicMessages(conv.Turns())
	require.Len(t, msgs, 3)
	require.Len(t, msgs[2].Content, 1)
	result := msgs[2].Content[0].OfToolResult
	require.NotNil(t, result)
	assert.Equal(t, "t1", result.ToolUseID)
	assert.Empty(t, result.Content)

	raw, err := json.Marshal(msgs[2])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"text":""`)
	assert.Contains(t, string(raw), `"tool_use_id":"t1"`)
}
