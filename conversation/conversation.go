// Package conversation holds the provider-neutral transcript that is replayed
// to the model on every turn: turns, content blocks, finalized assistant
// messages, and the tool descriptors discovered from the tool server.
package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnmatchedToolResult is returned when a tool-result turn does not answer
// exactly the tool_use blocks of the preceding assistant turn.
var ErrUnmatchedToolResult = errors.New("conversation: tool results do not match pending tool uses")

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType tags a content block variant.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// Block is a tagged content block. Only the fields relevant to Type are set.
type Block struct {
	Type BlockType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text block.
func TextBlock(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUseBlock builds a tool_use block. A nil input is stored as an empty object.
func ToolUseBlock(id, name string, input json.RawMessage) Block {
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	return Block{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock builds a tool_result block answering the tool_use with the given id.
func ToolResultBlock(toolUseID, content string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// Turn is one entry of the transcript.
type Turn struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// ToolUses returns the tool_use blocks of the turn in order.
func (t Turn) ToolUses() []Block {
	var uses []Block
	for _, b := range t.Content {
		if b.Type == BlockToolUse {
			uses = append(uses, b)
		}
	}
	return uses
}

// Text concatenates the text blocks of the turn.
func (t Turn) Text() string {
	var s string
	for _, b := range t.Content {
		if b.Type == BlockText {
			s += b.Text
		}
	}
	return s
}

// Conversation is an append-only transcript. It is owned by a single session
// and is not safe for concurrent use.
type Conversation struct {
	turns []Turn
}

// New creates a conversation seeded with a user prompt. An empty prompt
// yields an empty conversation.
func New(prompt string) *Conversation {
	c := &Conversation{}
	if prompt != "" {
		c.AppendUser(TextBlock(prompt))
	}
	return c
}

// Turns returns a copy of the transcript.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.turns) }

// Last returns the most recent turn and false if the conversation is empty.
func (c *Conversation) Last() (Turn, bool) {
	if len(c.turns) == 0 {
		return Turn{}, false
	}
	return c.turns[len(c.turns)-1], true
}

// AppendUser appends a user turn.
func (c *Conversation) AppendUser(blocks ...Block) {
	c.turns = append(c.turns, Turn{Role: RoleUser, Content: blocks})
}

// AppendAssistant appends a finalized assistant message as a turn.
func (c *Conversation) AppendAssistant(msg *Message) {
	blocks := make([]Block, len(msg.Content))
	copy(blocks, msg.Content)
	c.turns = append(c.turns, Turn{Role: RoleAssistant, Content: blocks})
}

// PendingToolUses returns the tool_use blocks of the last turn when it is an
// assistant turn, or nil otherwise.
func (c *Conversation) PendingToolUses() []Block {
	last, ok := c.Last()
	if !ok || last.Role != RoleAssistant {
		return nil
	}
	return last.ToolUses()
}

// AppendToolResults appends one user turn carrying the given tool_result
// blocks. The result ids must be a permutation of the pending tool_use ids:
// no omissions, no duplicates, no foreign ids.
func (c *Conversation) AppendToolResults(results []Block) error {
	pending := c.PendingToolUses()
	if len(pending) == 0 {
		return fmt.Errorf("%w: no pending tool uses", ErrUnmatchedToolResult)
	}
	if len(results) != len(pending) {
		return fmt.Errorf("%w: got %d results for %d tool uses", ErrUnmatchedToolResult, len(results), len(pending))
	}

	want := make(map[string]bool, len(pending))
	for _, u := range pending {
		want[u.ID] = true
	}
	for _, r := range results {
		if r.Type != BlockToolResult {
			return fmt.Errorf("%w: block type %q", ErrUnmatchedToolResult, r.Type)
		}
		if !want[r.ToolUseID] {
			return fmt.Errorf("%w: unexpected or duplicate id %q", ErrUnmatchedToolResult, r.ToolUseID)
		}
		delete(want, r.ToolUseID)
	}

	c.AppendUser(results...)
	return nil
}
