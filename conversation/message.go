package conversation

import (
	"encoding/json"
	"strings"
)

// StopReason is the provider-supplied tag explaining why a model turn ended.
type StopReason string

const (
	StopToolUse      StopReason = "tool_use"
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// Usage holds token counts reported for a single model call.
type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheReadInputTokens     int64
	CacheCreationInputTokens int64
}

// Message is a finalized assistant message produced by one streamed turn.
type Message struct {
	Model      string
	Content    []Block
	StopReason StopReason
	Usage      Usage
}

// ToolUses returns the tool_use blocks of the message in order.
func (m *Message) ToolUses() []Block {
	return Turn{Role: RoleAssistant, Content: m.Content}.ToolUses()
}

// Text concatenates the text blocks of the message.
func (m *Message) Text() string {
	return Turn{Role: RoleAssistant, Content: m.Content}.Text()
}

// ToolDescriptor describes one callable tool exposed by the tool server.
// Descriptors are discovered once per session and never mutated.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Outcome is the normalized result of one tool invocation: either Ok(Content)
// or Err(Err). A non-empty Err marks the failure case.
type Outcome struct {
	Content string
	Err     string
}

// Ok builds a successful outcome.
func Ok(content string) Outcome { return Outcome{Content: content} }

// Err builds a failed outcome carrying a human-readable message.
func Err(message string) Outcome {
	if message == "" {
		message = "unknown error"
	}
	return Outcome{Err: message}
}

// IsError reports whether the outcome is the failure case.
func (o Outcome) IsError() bool { return o.Err != "" }

// ErrorPrefix marks tool failures in the content sent back to the model.
const ErrorPrefix = "Error: "

// ResultBlock converts the outcome into the tool_result block answering call.
// Failures are prefixed with ErrorPrefix so the model reads them as prose.
func (o Outcome) ResultBlock(call Block) Block {
	if o.IsError() {
		return ToolResultBlock(call.ID, ErrorPrefix+o.Err, true)
	}
	return ToolResultBlock(call.ID, o.Content, false)
}

// AnsweredToolUses reports which tool_use ids of turns[i] are answered by a
// tool_result block in turns[i+1].
func AnsweredToolUses(turns []Turn, i int) map[string]bool {
	answered := make(map[string]bool)
	if i+1 >= len(turns) || turns[i+1].Role != RoleUser {
		return answered
	}
	for _, b := range turns[i+1].Content {
		if b.Type == BlockToolResult {
			answered[b.ToolUseID] = true
		}
	}
	return answered
}

// DescribeToolUse renders a tool_use block as plain text, for transcripts that
// cannot carry the structured block.
func DescribeToolUse(b Block) string {
	var sb strings.Builder
	sb.WriteString("[Tool: ")
	sb.WriteString(b.Name)
	sb.WriteString("]")
	if len(b.Input) > 0 && string(b.Input) != "{}" {
		sb.WriteString(" ")
		sb.Write(b.Input)
	}
	return sb.String()
}
