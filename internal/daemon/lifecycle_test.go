package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func lifecycleFixture(t *testing.T) (*Lifecycle, string) {
	t.Helper()
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "relay.sock")
	server := NewServer(socketPath)
	lc := NewLifecycle(server, nil,
		filepath.Join(dir, "relay.pid"),
		filepath.Join(dir, "relay.lock"),
		filepath.Join(dir, "ws.port"),
		socketPath,
		"test")
	return lc, dir
}

func TestLifecycleStartAndGracefulStop(t *testing.T) {
	lc, dir := lifecycleFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	pidPath := filepath.Join(dir, "relay.pid")
	waitFor(t, func() bool {
		_, err := os.Stat(pidPath)
		return err == nil
	}, "PID file written")
	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "relay.sock"))
		return err == nil
	}, "socket created")

	info, err := ReadPIDFile(pidPath)
	if err != nil {
		t.Fatalf("ReadPIDFile: %v", err)
	}
	if info.PID != os.Getpid() {
		t.Fatalf("PID = %d, want %d", info.PID, os.Getpid())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down")
	}

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatal("PID file not removed on shutdown")
	}
	if _, err := os.Stat(filepath.Join(dir, "relay.sock")); !os.IsNotExist(err) {
		t.Fatal("socket not removed on shutdown")
	}
}

func TestLifecycleRefusesSecondInstance(t *testing.T) {
	lc, dir := lifecycleFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "relay.pid"))
		return err == nil
	}, "first instance up")

	second := NewServer(filepath.Join(dir, "other.sock"))
	lc2 := NewLifecycle(second, nil,
		filepath.Join(dir, "relay.pid"),
		filepath.Join(dir, "relay.lock"),
		filepath.Join(dir, "ws.port"),
		filepath.Join(dir, "other.sock"),
		"test")

	if err := lc2.Run(context.Background()); err == nil {
		t.Fatal("second instance should fail while first holds the lock")
	}

	cancel()
	<-done
}

func TestLifecycleRunsBackgroundTasks(t *testing.T) {
	lc, _ := lifecycleFixture(t)

	started := make(chan struct{})
	stopped := make(chan struct{})
	lc.AddTask(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("background task never started")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("background task not canceled on shutdown")
	}
	<-done
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
