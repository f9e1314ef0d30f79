package daemonctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"lapse/internal/queue"
	"lapse/internal/testsupport"
)

func TestRunningWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, pid, err := Running(cfg)
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if running || pid != 0 {
		t.Fatalf("expected no daemon, got running=%v pid=%d", running, pid)
	}
	if _, err := StopAndTerminate(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopAndTerminateSignalsLockHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	lock := flock.New(cfg.LockPath())
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer lock.Unlock()

	child := exec.Command("sleep", "30")
	if err := child.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(done)
	}()
	if err := os.WriteFile(cfg.PIDPath(), []byte(strconv.Itoa(child.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	running, pid, err := Running(cfg)
	if err != nil || !running || pid != child.Process.Pid {
		t.Fatalf("expected running daemon pid %d, got %v %d %v", child.Process.Pid, running, pid, err)
	}

	result, err := StopAndTerminate(cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndTerminate: %v", err)
	}
	if result.PID != child.Process.Pid || result.ForcedKill {
		t.Fatalf("unexpected result %+v", result)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewJob(t, store, queue.KindVideo)
	testsupport.NewJob(t, store, queue.KindPhoto)
	testsupport.NewJob(t, store, queue.KindPhoto)

	status, online, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if online || status.Running {
		t.Fatal("expected offline snapshot")
	}
	if status.Workflow.QueueStats["video"]["queued"] != 1 || status.Workflow.QueueStats["photo"]["queued"] != 2 {
		t.Fatalf("unexpected stats %+v", status.Workflow.QueueStats)
	}
	if len(status.Dependencies) == 0 || len(status.Checks) == 0 {
		t.Fatal("expected local environment checks")
	}
}
