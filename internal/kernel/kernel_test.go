package kernel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ahmedshikashaker/automaker/pkg/config"
	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	project := t.TempDir()
	if _, err := utils.EnsureAutomakerDir(project); err != nil {
		t.Fatalf("Failed to create project dir: %v", err)
	}
	cfg, err := config.DefaultForProject(project)
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	return cfg
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Error("Expected error for nil config")
	}
}

func TestNewBuildsComponents(t *testing.T) {
	k, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Failed to build kernel: %v", err)
	}
	defer k.Store.Close()
	defer func() {
		if k.EventLog != nil {
			k.EventLog.Close()
		}
	}()

	if k.Store == nil || k.Bus == nil || k.Providers == nil || k.Gate == nil {
		t.Fatal("Expected core components to be built")
	}
	if k.Controller == nil || k.API == nil {
		t.Fatal("Expected controller and API to be built")
	}
	if k.EventLog == nil {
		t.Error("Expected event log writer with default config")
	}
	if k.Recorder != nil {
		t.Error("Expected no recorder while metrics are disabled")
	}
	if k.Queries != nil {
		t.Error("Expected no query service without a Prometheus URL")
	}
}

func TestProviderRegistryPrefixes(t *testing.T) {
	secrets := config.NewSecrets()
	secrets.Set(config.SecretAnthropicAPIKey, "sk-ant-test")
	secrets.Set(config.SecretOpenAIAPIKey, "sk-test")
	secrets.Set(config.SecretGeminiAPIKey, "gm-test")

	k, err := New(testConfig(t), secrets)
	if err != nil {
		t.Fatalf("Failed to build kernel: %v", err)
	}
	defer k.Store.Close()

	names := strings.Join(k.Providers.Names(), ",")
	for _, want := range []string{"claude-code", "claude-", "gpt-", "o3", "o4", "gemini-", "ollama:"} {
		if !strings.Contains(names, want) {
			t.Errorf("Expected registry to include %q, got %s", want, names)
		}
	}
}

func TestProviderRegistryWithoutSecrets(t *testing.T) {
	for _, name := range []string{config.SecretAnthropicAPIKey, config.SecretOpenAIAPIKey, config.SecretGeminiAPIKey} {
		t.Setenv(name, "")
	}

	k, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Failed to build kernel: %v", err)
	}
	defer k.Store.Close()

	names := strings.Join(k.Providers.Names(), ",")
	if !strings.Contains(names, "claude-code") || !strings.Contains(names, "ollama:") {
		t.Errorf("Expected CLI and ollama providers, got %s", names)
	}
	if strings.Contains(names, "gpt-") || strings.Contains(names, "gemini-") {
		t.Errorf("Expected no SDK providers without keys, got %s", names)
	}
}

func TestStartStop(t *testing.T) {
	k, err := New(testConfig(t), nil)
	if err != nil {
		t.Fatalf("Failed to build kernel: %v", err)
	}

	if err := k.Start(); err != nil {
		t.Fatalf("Failed to start kernel: %v", err)
	}
	if err := k.Start(); err == nil {
		t.Error("Expected error on double start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop kernel: %v", err)
	}

	// Second stop is a no-op.
	if err := k.Stop(ctx); err != nil {
		t.Errorf("Expected idempotent stop, got %v", err)
	}
}
