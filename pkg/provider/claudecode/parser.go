package claudecode

import (
	"encoding/json"
	"strings"

	"github.com/ahmedshikashaker/automaker/pkg/provider"
)

// streamEvent is one line of Claude Code's stream-json output.
type streamEvent struct {
	Type    string            `json:"type"`
	Subtype string            `json:"subtype,omitempty"`
	Message *assistantMessage `json:"message,omitempty"`
	Result  string            `json:"result,omitempty"`
	IsError bool              `json:"is_error,omitempty"`
	NumTurns int              `json:"num_turns,omitempty"`
	Error   *errorInfo        `json:"error,omitempty"`
}

// assistantMessage carries the content blocks of an assistant event.
type assistantMessage struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role,omitempty"`
	Content []contentBlock `json:"content,omitempty"`
	Model   string         `json:"model,omitempty"`
}

// contentBlock is one block inside an assistant message.
type contentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type errorInfo struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
}

// parseLine converts one stream-json line into a provider message.
// Returns (zero, false) for blank lines, unparsable lines, and event
// types the normalizer does not care about (system, tool progress).
// Lenient by design: the CLI emits event shapes we do not control.
func parseLine(line string) (provider.Message, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return provider.Message{}, false
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(line), &event); err != nil {
		return provider.Message{}, false
	}

	switch event.Type {
	case "assistant":
		if event.Message == nil {
			return provider.Message{}, false
		}
		msg := provider.Message{Type: provider.MessageAssistant}
		for _, block := range event.Message.Content {
			msg.Content = append(msg.Content, convertBlock(block))
		}
		return msg, true

	case "error":
		message := "claude code stream error"
		if event.Error != nil && event.Error.Message != "" {
			message = event.Error.Message
		}
		return provider.ErrorMessage(message), true

	case "result":
		subtype := provider.ResultSuccess
		if event.IsError || (event.Subtype != "" && event.Subtype != "success") {
			subtype = provider.ResultFailure
		}
		msg := provider.Message{
			Type: provider.MessageResult,
			Result: &provider.ResultInfo{
				Subtype:  subtype,
				Text:     event.Result,
				IsError:  event.IsError,
				NumTurns: event.NumTurns,
			},
		}
		return msg, true

	default:
		// system/init and tool progress events are provider-internal.
		return provider.Message{}, false
	}
}

func convertBlock(block contentBlock) provider.ContentBlock {
	out := provider.ContentBlock{
		ID:   block.ID,
		Name: block.Name,
	}
	switch block.Type {
	case "text":
		out.Type = provider.BlockText
		out.Text = block.Text
	case "thinking":
		out.Type = provider.BlockThinking
		out.Text = block.Thinking
	case "tool_use":
		out.Type = provider.BlockToolUse
		if len(block.Input) > 0 {
			var input map[string]any
			if err := json.Unmarshal(block.Input, &input); err == nil {
				out.Input = input
			}
		}
	case "tool_result":
		out.Type = provider.BlockToolResult
	default:
		out.Type = provider.BlockType(block.Type)
	}
	return out
}
