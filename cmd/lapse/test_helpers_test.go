package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lapse/internal/archive"
	"lapse/internal/config"
	"lapse/internal/daemon"
	"lapse/internal/logging"
	"lapse/internal/queue"
	"lapse/internal/stage"
	"lapse/internal/testsupport"
	"lapse/internal/workflow"
)

type noopEngine struct{}

func (noopEngine) Prepare(context.Context, *queue.Job) error { return nil }
func (noopEngine) Execute(context.Context, *queue.Job) error { return nil }
func (noopEngine) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	configPath string
	apiURL     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	store := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureHandlers(workflow.HandlerSet{
		Video: noopEngine{},
		Photo: archive.NewPackager(cfg, logger),
	})

	d, err := daemon.New(cfg, store, logger, mgr, "test")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		d.Close()
	})

	// Point the config at the bound port so status lookups reach the daemon.
	cfg.Paths.APIBind = d.Addr()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		configPath: configPath,
		apiURL:     "http://" + d.Addr(),
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath, "--api", env.apiURL}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeStills(t *testing.T, cfg *config.Config, count int) []string {
	t.Helper()
	return testsupport.WriteStills(t, cfg.CameraDir("dev", "proj", "cam"),
		time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), time.Minute, count)
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
