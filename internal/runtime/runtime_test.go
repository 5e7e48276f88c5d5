package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DatasetsRoot = t.TempDir()
	cfg.DumpDir = t.TempDir()
	cfg.Flute.Addr = "127.0.0.1:0"
	cfg.WebRTC.PortMin = 0
	cfg.WebRTC.PortMax = 0
	return cfg
}

func TestOpenAndClose(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t), Logger: logpkg.NewNop()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Registry() == nil || rt.Scheduler() == nil || rt.Supervisor() == nil {
		t.Fatal("subsystem missing")
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestHealthFailsWithoutDatasets(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatasetsRoot = "/nonexistent/datasets"
	rt, err := Open(Options{Config: cfg, Logger: logpkg.NewNop()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	if err := rt.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected health failure")
	}
}
