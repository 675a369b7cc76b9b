// Package provider defines the agent-execution provider interface, the
// closed set of stream message shapes, and the stream normalizer that
// converts a provider's message channel into callbacks plus an
// accumulated result.
package provider

// MessageType identifies a stream message variant.
type MessageType string

const (
	// MessageAssistant carries ordered content blocks.
	MessageAssistant MessageType = "assistant"
	// MessageError is terminal; the stream must not be read past it.
	MessageError MessageType = "error"
	// MessageResult is the terminal success/failure summary.
	MessageResult MessageType = "result"
)

// BlockType identifies a content block variant inside an assistant message.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockThinking   BlockType = "thinking"
	BlockToolResult BlockType = "tool_result"
)

// Result subtypes.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Message is one event from a provider stream. Exactly the fields for its
// Type are populated.
type Message struct {
	Type    MessageType    `json:"type"`
	Content []ContentBlock `json:"content,omitempty"` // assistant
	Error   *ErrorInfo     `json:"error,omitempty"`   // error
	Result  *ResultInfo    `json:"result,omitempty"`  // result
}

// ContentBlock is one block of an assistant message.
type ContentBlock struct {
	Type  BlockType      `json:"type"`
	Text  string         `json:"text,omitempty"` // text, thinking
	ID    string         `json:"id,omitempty"`   // tool_use
	Name  string         `json:"name,omitempty"` // tool_use
	Input map[string]any `json:"input,omitempty"`
}

// ErrorInfo carries terminal error details.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ResultInfo carries the terminal result of a provider session.
type ResultInfo struct {
	Subtype  string `json:"subtype"` // success | failure
	Text     string `json:"text,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
	NumTurns int    `json:"num_turns,omitempty"`
}

// AssistantText builds an assistant message holding a single text block.
// Fake providers and tests use these constructors heavily.
func AssistantText(text string) Message {
	return Message{Type: MessageAssistant, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// AssistantToolUse builds an assistant message holding one tool_use block.
func AssistantToolUse(id, name string, input map[string]any) Message {
	return Message{Type: MessageAssistant, Content: []ContentBlock{{Type: BlockToolUse, ID: id, Name: name, Input: input}}}
}

// ErrorMessage builds a terminal error message.
func ErrorMessage(msg string) Message {
	return Message{Type: MessageError, Error: &ErrorInfo{Message: msg}}
}

// ResultMessage builds a terminal result message.
func ResultMessage(subtype, text string) Message {
	return Message{Type: MessageResult, Result: &ResultInfo{Subtype: subtype, Text: text, IsError: subtype != ResultSuccess}}
}
