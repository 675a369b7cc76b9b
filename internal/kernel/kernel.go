// Package kernel wires the run orchestrator: configuration, persistence,
// metrics, the event bus and log, providers, the approval gate, the run
// controller, and the control API share one composition root with a
// single ordered shutdown path.
package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmedshikashaker/automaker/internal/httpapi"
	"github.com/ahmedshikashaker/automaker/pkg/approval"
	"github.com/ahmedshikashaker/automaker/pkg/autoloop"
	"github.com/ahmedshikashaker/automaker/pkg/config"
	"github.com/ahmedshikashaker/automaker/pkg/events"
	"github.com/ahmedshikashaker/automaker/pkg/eventlog"
	"github.com/ahmedshikashaker/automaker/pkg/exec"
	"github.com/ahmedshikashaker/automaker/pkg/logx"
	"github.com/ahmedshikashaker/automaker/pkg/metrics"
	"github.com/ahmedshikashaker/automaker/pkg/persistence"
	"github.com/ahmedshikashaker/automaker/pkg/provider"
	"github.com/ahmedshikashaker/automaker/pkg/provider/anthropic"
	"github.com/ahmedshikashaker/automaker/pkg/provider/claudecode"
	"github.com/ahmedshikashaker/automaker/pkg/provider/google"
	"github.com/ahmedshikashaker/automaker/pkg/provider/ollama"
	"github.com/ahmedshikashaker/automaker/pkg/provider/openai"
	"github.com/ahmedshikashaker/automaker/pkg/utils"
	"github.com/ahmedshikashaker/automaker/pkg/worktree"
)

// Kernel owns the shared infrastructure for one automaker process.
type Kernel struct {
	Config     *config.Config
	Logger     *logx.Logger
	Store      *persistence.Store
	Recorder   *metrics.Recorder
	Bus        *events.Bus
	EventLog   *eventlog.Writer
	Providers  *provider.Registry
	Gate       *approval.Gate
	Controller *autoloop.Controller
	Queries    *metrics.QueryService
	API        *httpapi.Server

	secrets  *config.Secrets
	logUnsub func()
	logDone  chan struct{}
	running  bool
}

// New builds a kernel from loaded config and decrypted secrets. secrets
// may be nil; providers then fall back to environment variables.
func New(cfg *config.Config, secrets *config.Secrets) (*Kernel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if secrets == nil {
		secrets = config.NewSecrets()
	}

	k := &Kernel{
		Config:  cfg,
		Logger:  logx.NewLogger("kernel"),
		secrets: secrets,
	}
	if err := k.initialize(); err != nil {
		k.closePartial()
		return nil, err
	}
	return k, nil
}

func (k *Kernel) initialize() error {
	var err error

	if k.Config.Metrics.Enabled {
		k.Recorder = metrics.NewRecorder()
	}
	if k.Config.Metrics.Enabled && k.Config.Metrics.PrometheusURL != "" {
		k.Queries, err = metrics.NewQueryService(k.Config.Metrics.PrometheusURL)
		if err != nil {
			// Summaries are optional; the status endpoint omits them.
			k.Logger.Warn("prometheus query service unavailable: %v", err)
		}
	}

	k.Store, err = persistence.Open(k.Config.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	k.Bus = events.NewBus(k.Recorder)

	if k.Config.EventLog.Dir != "" {
		k.EventLog, err = eventlog.NewWriter(k.Config.EventLog.Dir)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
	}

	k.Providers = k.buildProviderRegistry()
	k.Gate = approval.NewGate(k.Bus)

	tokens, err := utils.NewTokenCounter("")
	if err != nil {
		// Token counting is advisory. The counter falls back to an
		// estimate internally, so a nil counter only loses log detail.
		k.Logger.Warn("token counter unavailable: %v", err)
	}

	resolver := worktree.NewResolver(exec.NewLocalExec())
	k.Controller = autoloop.NewController(
		resolver,
		k.Providers,
		k.Gate,
		k.Bus,
		k.Store,
		k.Recorder,
		tokens,
		autoloop.Options{
			UseWorktrees: k.Config.Runner.UseWorktrees,
			AutoCommit:   k.Config.Git.AutoCommit,
			DefaultModel: k.Config.Runner.DefaultModel,
			MaxTurns:     k.Config.Runner.MaxTurns,
		},
	)

	k.API = httpapi.NewServer(k.Controller, k.Gate, k.Store, k.Bus, k.Queries)
	return nil
}

// buildProviderRegistry binds model-name prefixes to providers. The
// Claude CLI is the fallback so bare model names still run.
func (k *Kernel) buildProviderRegistry() *provider.Registry {
	reg := provider.NewRegistry()

	cli := claudecode.New(k.Config.Providers.ClaudeBinary, nil)
	reg.Register("claude-code", cli)
	reg.SetFallback(cli)

	if key := k.secrets.Get(config.SecretAnthropicAPIKey); key != "" {
		reg.Register("claude-", anthropic.New(key, nil))
	}
	if key := k.secrets.Get(config.SecretOpenAIAPIKey); key != "" {
		p := openai.New(key, nil)
		reg.Register("gpt-", p)
		reg.Register("o3", p)
		reg.Register("o4", p)
	}
	if key := k.secrets.Get(config.SecretGeminiAPIKey); key != "" {
		reg.Register("gemini-", google.New(key, nil))
	}
	reg.Register("ollama:", ollama.New(k.Config.Providers.OllamaHost, nil))

	return reg
}

// Start activates the run loop and begins pumping events into the log.
// It does not start the HTTP listener; callers that want the control API
// run k.API.Start in their own goroutine.
func (k *Kernel) Start() error {
	if k.running {
		return fmt.Errorf("kernel already started")
	}

	if err := k.Controller.StartAutoLoop(k.Config.Project.Path, k.Config.Runner.MaxConcurrency); err != nil {
		return fmt.Errorf("start auto loop: %w", err)
	}

	if k.EventLog != nil {
		ch, unsub := k.Bus.Subscribe(1024)
		k.logUnsub = unsub
		k.logDone = make(chan struct{})
		go func() {
			defer close(k.logDone)
			eventlog.Pump(k.EventLog, ch)
		}()
	}

	k.running = true
	k.Logger.Info("kernel started (project %s, max concurrency %d)",
		k.Config.Project.Path, k.Config.Runner.MaxConcurrency)
	return nil
}

// Stop tears the kernel down in dependency order: stop admitting and
// cancel runs, drain the HTTP server, wait for run goroutines, flush the
// event log, then close the store.
func (k *Kernel) Stop(ctx context.Context) error {
	if !k.running {
		return nil
	}
	k.running = false

	cancelled := k.Controller.StopAutoLoop()
	if cancelled > 0 {
		k.Logger.Info("cancelled %d in-flight runs", cancelled)
	}

	var errs []string
	if err := k.API.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("http shutdown: %v", err))
	}
	if err := k.Controller.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Sprintf("controller shutdown: %v", err))
	}

	// Close the bus after runs have stopped so final lifecycle events
	// still reach the log pump.
	k.Bus.Close()
	if k.logUnsub != nil {
		k.logUnsub()
	}
	if k.logDone != nil {
		select {
		case <-k.logDone:
		case <-ctx.Done():
			errs = append(errs, "event log pump did not drain")
		}
	}
	if k.EventLog != nil {
		if err := k.EventLog.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("event log close: %v", err))
		}
	}
	if err := k.Store.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("store close: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("kernel stop: %s", strings.Join(errs, "; "))
	}
	k.Logger.Info("kernel stopped")
	return nil
}

func (k *Kernel) closePartial() {
	if k.EventLog != nil {
		_ = k.EventLog.Close()
	}
	if k.Store != nil {
		_ = k.Store.Close()
	}
}
