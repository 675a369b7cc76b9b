// Package testkit provides scripted fakes for the executor and provider
// seams plus event-bus assertion helpers. Tests across the repo share
// these instead of hand-rolling mocks.
package testkit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/exec"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
)

// ScriptedExec is an exec.Executor that answers commands from a script.
// Commands are matched by prefix against the joined argv; unmatched
// commands fail the test.
type ScriptedExec struct {
	t  *testing.T
	mu sync.Mutex

	responses map[string]exec.Result
	errors    map[string]error
	calls     []string
}

// NewScriptedExec creates an empty scripted executor.
func NewScriptedExec(t *testing.T) *ScriptedExec {
	t.Helper()
	return &ScriptedExec{
		t:         t,
		responses: make(map[string]exec.Result),
		errors:    make(map[string]error),
	}
}

// Respond registers stdout and exit code for commands starting with
// prefix, e.g. "git worktree list".
func (s *ScriptedExec) Respond(prefix, stdout string, exitCode int) *ScriptedExec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[prefix] = exec.Result{Stdout: stdout, ExitCode: exitCode}
	return s
}

// Fail registers a hard error (command could not start) for prefix.
func (s *ScriptedExec) Fail(prefix string, err error) *ScriptedExec {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[prefix] = err
	return s
}

// Run implements exec.Executor.
func (s *ScriptedExec) Run(_ context.Context, args []string, _ *exec.Opts) (exec.Result, error) {
	joined := strings.Join(args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, joined)

	for prefix, err := range s.errors {
		if strings.HasPrefix(joined, prefix) {
			return exec.Result{ExitCode: -1}, err
		}
	}
	for prefix, result := range s.responses {
		if strings.HasPrefix(joined, prefix) {
			return result, nil
		}
	}
	s.t.Fatalf("unscripted command: %q", joined)
	return exec.Result{}, nil
}

// Name implements exec.Executor.
func (s *ScriptedExec) Name() string { return "scripted" }

// Calls returns every command run so far.
func (s *ScriptedExec) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// CallCount returns how many commands matched prefix.
func (s *ScriptedExec) CallCount(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// FakeProvider is a provider.Provider that plays back scripted message
// sequences. Each ExecuteQuery call consumes the next script; when the
// scripts run out the last one repeats.
type FakeProvider struct {
	mu      sync.Mutex
	name    string
	scripts [][]provider.Message
	err     error
	calls   []provider.QueryOptions
}

// NewFakeProvider creates a provider that streams the given messages on
// every call.
func NewFakeProvider(messages ...provider.Message) *FakeProvider {
	return &FakeProvider{name: "fake", scripts: [][]provider.Message{messages}}
}

// NewFakeProviderScripts creates a provider whose nth call streams the
// nth script.
func NewFakeProviderScripts(scripts ...[]provider.Message) *FakeProvider {
	return &FakeProvider{name: "fake", scripts: scripts}
}

// FailWith makes every ExecuteQuery return err instead of a stream.
func (f *FakeProvider) FailWith(err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Name implements provider.Provider.
func (f *FakeProvider) Name() string { return f.name }

// ExecuteQuery implements provider.Provider.
func (f *FakeProvider) ExecuteQuery(ctx context.Context, opts provider.QueryOptions) (<-chan provider.Message, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	idx := len(f.calls) - 1
	if idx >= len(f.scripts) {
		idx = len(f.scripts) - 1
	}
	script := f.scripts[idx]
	f.mu.Unlock()

	out := make(chan provider.Message, len(script))
	go func() {
		defer close(out)
		for _, msg := range script {
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Calls returns the options of every ExecuteQuery so far.
func (f *FakeProvider) Calls() []provider.QueryOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.QueryOptions(nil), f.calls...)
}

// SuccessScript builds the common stream shape: one assistant text
// message followed by a success result carrying the same text.
func SuccessScript(text string) []provider.Message {
	return []provider.Message{
		provider.AssistantText(text),
		provider.ResultMessage(provider.ResultSuccess, text),
	}
}

// EventCollector subscribes to a bus and records everything emitted.
type EventCollector struct {
	mu     sync.Mutex
	events []events.Event
	unsub  func()
	done   chan struct{}
}

// CollectEvents attaches a collector to bus. Cleanup detaches it when
// the test ends.
func CollectEvents(t *testing.T, bus *events.Bus) *EventCollector {
	t.Helper()
	ch, unsub := bus.Subscribe(1024)
	c := &EventCollector{unsub: unsub, done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for e := range ch {
			c.mu.Lock()
			c.events = append(c.events, e)
			c.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		unsub()
		<-c.done
	})
	return c
}

// Drain closes the bus and waits for the collector to finish reading,
// making the recorded events complete. Call it before asserting on
// event order.
func (c *EventCollector) Drain(bus *events.Bus) {
	bus.Close()
	<-c.done
}

// Events returns a snapshot of collected events.
func (c *EventCollector) Events() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.events...)
}

// Types returns the collected event types in order.
func (c *EventCollector) Types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]events.Type, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

// TypesFor returns the event types recorded for one feature, in order.
func (c *EventCollector) TypesFor(featureID string) []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []events.Type
	for _, e := range c.events {
		if e.FeatureID == featureID {
			types = append(types, e.Type)
		}
	}
	return types
}

// WaitFor polls until an event of type t exists for featureID or the
// timeout expires.
func (c *EventCollector) WaitFor(t *testing.T, featureID string, typ events.Type, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, e := range c.events {
			if e.FeatureID == featureID && e.Type == typ {
				c.mu.Unlock()
				return e
			}
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event for feature %s", typ, featureID)
	return events.Event{}
}

// AssertEventOrder fails unless want appears as a subsequence of the
// feature's recorded event types.
func (c *EventCollector) AssertEventOrder(t *testing.T, featureID string, want ...events.Type) {
	t.Helper()
	got := c.TypesFor(featureID)
	i := 0
	for _, g := range got {
		if i < len(want) && g == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("event order mismatch for %s:\n  want subsequence %v\n  got %v", featureID, want, got)
	}
}

// Sink is a drop counter that just counts, for bus tests.
type Sink struct {
	mu    sync.Mutex
	drops int
}

// EventDropped implements events.DropCounter.
func (s *Sink) EventDropped() {
	s.mu.Lock()
	s.drops++
	s.mu.Unlock()
}

// Drops returns the number of dropped events.
func (s *Sink) Drops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drops
}

// TempID returns a unique feature ID for parallel tests.
func TempID(t *testing.T, prefix string) string {
	t.Helper()
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
