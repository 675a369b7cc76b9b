package provider

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

// stream builds a closed channel preloaded with messages.
func stream(messages ...Message) <-chan Message {
	ch := make(chan Message, len(messages))
	for _, m := range messages {
		ch <- m
	}
	close(ch)
	return ch
}

func TestProcessStreamAccumulatesText(t *testing.T) {
	var seen []string
	res, err := ProcessStream(context.Background(), stream(
		AssistantText("Hello"),
		AssistantText(" world"),
		ResultMessage(ResultSuccess, "Hello world"),
	), Handlers{
		OnText: func(text string) { seen = append(seen, text) },
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Text != "Hello world" {
		t.Errorf("Expected accumulated text 'Hello world', got %q", res.Text)
	}
	if !res.Success {
		t.Error("Expected success")
	}
	if res.Result != "Hello world" {
		t.Errorf("Expected result text, got %q", res.Result)
	}
	if len(seen) != 2 || seen[0] != "Hello" || seen[1] != " world" {
		t.Errorf("Expected each text block delivered once in order, got %v", seen)
	}
}

func TestProcessStreamErrorShortCircuits(t *testing.T) {
	ch := make(chan Message, 3)
	ch <- AssistantText("partial")
	ch <- ErrorMessage("rate limit exceeded, status code: 429")
	// Never closed and never read past the error.
	ch <- AssistantText("must not be processed")

	var errMsg string
	res, err := ProcessStream(context.Background(), ch, Handlers{
		OnError: func(msg string) { errMsg = msg },
	})
	if err == nil {
		t.Fatal("Expected a classified error")
	}
	if res.Text != "" || res.Result != "" {
		t.Errorf("Error abort must return a zero result, got %+v", res)
	}
	if !strings.Contains(errMsg, "rate limit") {
		t.Errorf("Expected OnError to receive the message, got %q", errMsg)
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeRateLimit) {
		t.Errorf("Expected rate limit classification, got %v", llmerrors.TypeOf(err))
	}
}

func TestProcessStreamToolUseDispatch(t *testing.T) {
	var toolName string
	var toolInput map[string]any
	_, err := ProcessStream(context.Background(), stream(
		AssistantToolUse("tu_1", "write_file", map[string]any{"path": "main.go"}),
		ResultMessage(ResultSuccess, "done"),
	), Handlers{
		OnToolUse: func(name string, input map[string]any) {
			toolName = name
			toolInput = input
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if toolName != "write_file" {
		t.Errorf("Expected tool name write_file, got %q", toolName)
	}
	if toolInput["path"] != "main.go" {
		t.Errorf("Expected tool input delivered, got %v", toolInput)
	}
}

func TestProcessStreamFailureResult(t *testing.T) {
	res, err := ProcessStream(context.Background(), stream(
		AssistantText("tried"),
		ResultMessage(ResultFailure, "max turns exceeded"),
	), Handlers{})
	if err != nil {
		t.Fatalf("A failure result is data, not an error: %v", err)
	}
	if res.Success {
		t.Error("Expected Success=false for a failure result")
	}
	if res.Result != "max turns exceeded" {
		t.Errorf("Expected failure detail, got %q", res.Result)
	}
	if res.Text != "tried" {
		t.Errorf("Text before the failure result is still accumulated, got %q", res.Text)
	}
}

func TestProcessStreamChannelCloseWithoutResult(t *testing.T) {
	res, err := ProcessStream(context.Background(), stream(
		AssistantText("all I produced"),
	), Handlers{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Success {
		t.Error("Close without a result message defaults to success")
	}
	if res.Text != "all I produced" {
		t.Errorf("Expected accumulated text, got %q", res.Text)
	}
}

func TestProcessStreamContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Message) // unbuffered, nothing ever sent

	done := make(chan error, 1)
	go func() {
		_, err := ProcessStream(ctx, ch, Handlers{})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ProcessStream did not observe cancellation")
	}
}

func TestCollectStreamText(t *testing.T) {
	text, err := CollectStreamText(context.Background(), stream(
		AssistantText("a"),
		AssistantText("b"),
		ResultMessage(ResultSuccess, "ab"),
	))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != "ab" {
		t.Errorf("Expected 'ab', got %q", text)
	}
}

func TestUserFacingErrorRateLimitGuidance(t *testing.T) {
	err := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "rate limit exceeded")
	msg := UserFacingError(err)
	if !strings.Contains(msg, "maxConcurrency") {
		t.Errorf("Expected concurrency guidance for rate limits, got %q", msg)
	}

	plain := UserFacingError(llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"))
	if strings.Contains(plain, "maxConcurrency") {
		t.Errorf("Non-rate-limit errors must not carry concurrency guidance, got %q", plain)
	}
}
