// Package claudecode runs the Claude Code CLI as an agent-execution
// provider, translating its stream-json output into provider messages.
package claudecode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/llmerrors"
)

// scannerBufferSize bounds a single stream-json line. Tool results can
// carry whole file contents, so the default 64KB is not enough.
const scannerBufferSize = 1024 * 1024

// Provider shells out to the Claude Code CLI with stream-json output.
type Provider struct {
	binary string
	logger *logx.Logger
}

// New creates a CLI provider. binary is the claude executable name or
// path; empty means "claude" resolved via PATH.
func New(binary string, logger *logx.Logger) *Provider {
	if binary == "" {
		binary = "claude"
	}
	if logger == nil {
		logger = logx.NewLogger("claudecode")
	}
	return &Provider{binary: binary, logger: logger}
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "claude-code" }

// ExecuteQuery starts one CLI run and streams its parsed output. The
// returned channel closes when the process exits or ctx is cancelled.
func (p *Provider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "claude-code: empty prompt")
	}

	args := p.buildArgs(opts)
	cmd := exec.CommandContext(ctx, p.binary, args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("claude-code: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeServiceUnavailable, err, fmt.Sprintf("claude-code: start %s", p.binary))
	}

	p.logger.Debug("started %s (pid %d, cwd %q)", p.binary, cmd.Process.Pid, opts.Cwd)

	out := make(chan provider.Message, 16)
	go p.pump(ctx, cmd, stdout, &stderr, out)
	return out, nil
}

// pump reads stream-json lines until EOF, forwards parsed messages, and
// reports process failure as a terminal error message when the stream
// produced no terminal of its own.
func (p *Provider) pump(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stderr *strings.Builder, out chan<- provider.Message) {
	defer close(out)

	sawTerminal := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), scannerBufferSize)

	for scanner.Scan() {
		msg, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		if msg.Type == provider.MessageError || msg.Type == provider.MessageResult {
			sawTerminal = true
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			// Consumer gone. CommandContext kills the process; drain
			// by returning so Wait can reap it.
			_ = cmd.Wait()
			return
		}
	}

	err := cmd.Wait()
	if err == nil || sawTerminal {
		return
	}
	if ctx.Err() != nil {
		// Cancellation is surfaced by the caller's context, not as a
		// stream error.
		return
	}

	detail := strings.TrimSpace(stderr.String())
	if detail == "" {
		detail = err.Error()
	}
	p.logger.Error("claude exited abnormally: %s", detail)
	select {
	case out <- provider.ErrorMessage(fmt.Sprintf("claude exited abnormally: %s", truncate(detail, 500))):
	case <-ctx.Done():
	}
}

// buildArgs assembles the CLI argv. The prompt rides after "--" so
// leading dashes in generated prompts cannot be parsed as flags.
func (p *Provider) buildArgs(opts provider.QueryOptions) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--dangerously-skip-permissions",
	}

	if opts.Model != "" && opts.Model != "claude-code" {
		args = append(args, "--model", strings.TrimPrefix(opts.Model, "claude-code:"))
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	args = append(args, "--session-id", sessionID)

	return append(args, "--", opts.Prompt)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
