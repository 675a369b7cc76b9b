package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

// Handlers carries optional per-event callbacks for ProcessStream. Any
// field may be nil.
type Handlers struct {
	OnText     func(text string)
	OnToolUse  func(name string, input map[string]any)
	OnThinking func(text string)
	OnError    func(message string)
	OnComplete func(result string)
}

// StreamResult is the aggregate outcome of a fully consumed stream.
type StreamResult struct {
	// Text is every text block concatenated in emission order.
	Text string

	// Success is true unless the result message reported failure.
	Success bool

	// Result is the terminal result message's text, if one arrived.
	Result string
}

// ProcessStream consumes a provider message stream, dispatching blocks to
// handlers in order. It returns normally only after the stream ends
// without an error event. An error event aborts processing and returns a
// classified error; text accumulated before the abort is observable only
// through OnText calls already made, never through the returned value.
//
// Each text block is delivered to OnText exactly once, in emission order,
// and concatenated into the returned Text in the same order.
func ProcessStream(ctx context.Context, stream <-chan Message, h Handlers) (StreamResult, error) {
	var text strings.Builder
	res := StreamResult{Success: true}

	for {
		select {
		case <-ctx.Done():
			return StreamResult{}, ctx.Err()
		case msg, ok := <-stream:
			if !ok {
				res.Text = text.String()
				return res, nil
			}

			switch msg.Type {
			case MessageAssistant:
				for _, block := range msg.Content {
					switch block.Type {
					case BlockText:
						text.WriteString(block.Text)
						if h.OnText != nil {
							h.OnText(block.Text)
						}
					case BlockToolUse:
						if h.OnToolUse != nil {
							h.OnToolUse(block.Name, block.Input)
						}
					case BlockThinking:
						if h.OnThinking != nil {
							h.OnThinking(block.Text)
						}
					case BlockToolResult:
						// Handled inside the provider's own tool loop.
					}
				}

			case MessageError:
				message := "provider stream error"
				if msg.Error != nil && msg.Error.Message != "" {
					message = msg.Error.Message
				}
				if h.OnError != nil {
					h.OnError(message)
				}
				return StreamResult{}, llmerrors.Classify(fmt.Errorf("stream error: %s", message))

			case MessageResult:
				if msg.Result != nil {
					res.Result = msg.Result.Text
					res.Success = msg.Result.Subtype == ResultSuccess && !msg.Result.IsError
					if h.OnComplete != nil {
						h.OnComplete(msg.Result.Text)
					}
				}
			}
		}
	}
}

// CollectStreamText consumes the stream with no callbacks and returns the
// accumulated text.
func CollectStreamText(ctx context.Context, stream <-chan Message) (string, error) {
	res, err := ProcessStream(ctx, stream, Handlers{})
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// UserFacingError renders a classified error for display, appending
// concurrency guidance on rate limits. Classification never triggers a
// retry here; retries are a caller policy.
func UserFacingError(err error) string {
	if err == nil {
		return ""
	}
	classified := llmerrors.Classify(err)
	msg := classified.Message
	if msg == "" {
		msg = classified.Error()
	}
	if classified.Type == llmerrors.ErrorTypeRateLimit {
		if classified.RetryAfter > 0 {
			msg += fmt.Sprintf(" (retry after %s)", classified.RetryAfter)
		}
		msg += "; consider lowering maxConcurrency"
	}
	return msg
}
