package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DatasetsRoot = t.TempDir()
	cfg.DumpDir = t.TempDir()
	cfg.Flute.Addr = "127.0.0.1:0"
	cfg.WebRTC.PortMin = 0
	cfg.WebRTC.PortMax = 0
	cfg.HTTPAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, Options{Config: cfg}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
