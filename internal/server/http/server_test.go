package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	cfgpkg "github.com/idlab-discover/pointcast/internal/config"
	"github.com/idlab-discover/pointcast/internal/pointcloud"
	"github.com/idlab-discover/pointcast/internal/registry"
	"github.com/idlab-discover/pointcast/internal/runtime"
	logpkg "github.com/idlab-discover/pointcast/pkg/log"
)

func newServerForTest(t *testing.T) (*httptest.Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DatasetsRoot = t.TempDir()
	cfg.DumpDir = t.TempDir()
	cfg.Flute.Addr = "127.0.0.1:0"
	cfg.WebRTC.PortMin = 0
	cfg.WebRTC.PortMax = 0

	dir := filepath.Join(cfg.DatasetsRoot, "loot", "Ply_longdress")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	cloud := pointcloud.MarshalPLY([]pointcloud.Point{{X: 1}, {Y: 1}})
	for _, name := range []string{"f1.ply", "f2.ply"} {
		if err := os.WriteFile(filepath.Join(dir, name), cloud, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logpkg.NewNop()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	srv := httptest.NewServer(New(rt).Handler())
	t.Cleanup(srv.Close)
	return srv, rt
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body
}

func TestHealthz(t *testing.T) {
	srv, _ := newServerForTest(t)
	code, body := getJSON(t, srv.URL+"/healthz")
	if code != http.StatusOK || body["status"] != "success" {
		t.Fatalf("healthz: %d %v", code, body)
	}
}

func TestDatasetsListing(t *testing.T) {
	srv, _ := newServerForTest(t)
	code, body := getJSON(t, srv.URL+"/datasets")
	if code != http.StatusOK {
		t.Fatalf("datasets: %d %v", code, body)
	}
	datasets := body["datasets"].([]any)
	if len(datasets) != 1 {
		t.Fatalf("datasets = %v", datasets)
	}
	ds := datasets[0].(map[string]any)
	if ds["name"] != "loot" {
		t.Fatalf("dataset name = %v", ds["name"])
	}

	code, body = getJSON(t, srv.URL+"/datasets/ply_files?dataset=loot&ply_folder=Ply_longdress")
	if code != http.StatusOK {
		t.Fatalf("ply_files: %d %v", code, body)
	}
	files := body["files"].([]any)
	if len(files) != 2 || files[0] != "f1.ply" {
		t.Fatalf("files = %v", files)
	}
}

func TestStreamSettingsMergeAndIdempotency(t *testing.T) {
	srv, _ := newServerForTest(t)

	// Set a default priority, then create a stream without one.
	code, _ := getJSON(t, srv.URL+"/streams/update_settings?stream_id=__default__&priority=5")
	if code != http.StatusOK {
		t.Fatal("default update failed")
	}
	code, body := getJSON(t, srv.URL+"/streams/update_settings?stream_id=x&position=1,2,3")
	if code != http.StatusOK {
		t.Fatalf("stream update failed: %v", body)
	}
	settings := body["settings"].(map[string]any)
	if settings["priority"].(float64) != 5 {
		t.Fatalf("x did not inherit priority 5: %v", settings)
	}

	// Override, change the default, and check the override sticks.
	getJSON(t, srv.URL+"/streams/update_settings?stream_id=x&priority=9")
	getJSON(t, srv.URL+"/streams/update_settings?stream_id=__default__&priority=3")

	_, list1 := getJSON(t, srv.URL+"/streams/list")
	// Applying the same update twice leaves the listing identical.
	getJSON(t, srv.URL+"/streams/update_settings?stream_id=x&priority=9")
	_, list2 := getJSON(t, srv.URL+"/streams/list")

	b1, _ := json.Marshal(list1)
	b2, _ := json.Marshal(list2)
	if string(b1) != string(b2) {
		t.Fatalf("listing changed after idempotent update:\n%s\n%s", b1, b2)
	}

	for _, item := range list2["streams"].([]any) {
		s := item.(map[string]any)
		if s["stream_id"] == "x" && s["priority"].(float64) != 9 {
			t.Fatalf("x.priority = %v, want 9", s["priority"])
		}
	}
}

func TestStreamSettingsRejectsUnknownField(t *testing.T) {
	srv, _ := newServerForTest(t)
	code, body := getJSON(t, srv.URL+"/streams/update_settings?stream_id=x&bogus=1")
	if code != http.StatusBadRequest || body["error_kind"] != "InvalidArgument" {
		t.Fatalf("unknown field: %d %v", code, body)
	}
}

func TestEgressUpdateSettings(t *testing.T) {
	srv, _ := newServerForTest(t)
	code, body := getJSON(t, srv.URL+"/egress/update_settings?egress_protocol=Flute&fps=60&fec_percentage=0.15&bandwidth=1000000&md5=true")
	if code != http.StatusOK {
		t.Fatalf("egress update: %d %v", code, body)
	}
	code, body = getJSON(t, srv.URL+"/egress/update_settings?egress_protocol=Bogus")
	if code != http.StatusBadRequest || body["error_kind"] != "InvalidArgument" {
		t.Fatalf("bad protocol: %d %v", code, body)
	}
	code, body = getJSON(t, srv.URL+"/egress/update_settings?egress_protocol=Flute&fec_percentage=1.5")
	if code != http.StatusBadRequest {
		t.Fatalf("bad percentage accepted: %d %v", code, body)
	}
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	srv, rt := newServerForTest(t)

	q := url.Values{}
	q.Set("dataset", "loot")
	q.Set("ply_folder", "Ply_longdress")
	q.Set("fps", "50")
	q.Set("presentation_time_offset", "100")
	q.Set("should_loop", "true")
	q.Set("egress_protocol", "File")
	q.Set("stream_id", "s")
	code, body := getJSON(t, srv.URL+"/start_job?"+q.Encode())
	if code != http.StatusOK {
		t.Fatalf("start_job: %d %v", code, body)
	}
	jobID := body["id"].(string)
	if jobID == "" {
		t.Fatal("empty job id")
	}

	if state, _ := rt.Registry().StateOf("s"); state != registry.StateActive {
		t.Fatalf("stream state = %s, want ACTIVE", state)
	}

	// Give the producer a few ticks.
	time.Sleep(100 * time.Millisecond)

	code, body = getJSON(t, srv.URL+"/stop_job?job_id="+jobID)
	if code != http.StatusOK {
		t.Fatalf("stop_job: %d %v", code, body)
	}
	if state, _ := rt.Registry().StateOf("s"); state != registry.StateStopped {
		t.Fatalf("stream state after stop = %s, want STOPPED", state)
	}

	// A second stop of the same id is NotFound.
	code, body = getJSON(t, srv.URL+"/stop_job?job_id="+jobID)
	if code != http.StatusNotFound || body["error_kind"] != "NotFound" {
		t.Fatalf("second stop: %d %v", code, body)
	}
}

func TestStopAllJobs(t *testing.T) {
	srv, _ := newServerForTest(t)
	q := url.Values{}
	q.Set("generator_name", "Basic")
	q.Set("fps", "50")
	q.Set("egress_protocol", "File")
	for i := 0; i < 2; i++ {
		if code, body := getJSON(t, srv.URL+"/start_job?"+q.Encode()); code != http.StatusOK {
			t.Fatalf("start %d: %v", i, body)
		}
	}
	code, body := getJSON(t, srv.URL+"/stop_all_jobs")
	if code != http.StatusOK {
		t.Fatalf("stop_all: %d %v", code, body)
	}
	if stopped := body["stopped"].([]any); len(stopped) != 2 {
		t.Fatalf("stopped = %v", stopped)
	}
}

func TestSocketsEmpty(t *testing.T) {
	srv, _ := newServerForTest(t)
	code, body := getJSON(t, srv.URL+"/sockets")
	if code != http.StatusOK {
		t.Fatalf("sockets: %d %v", code, body)
	}
	if sockets := body["sockets"].([]any); len(sockets) != 0 {
		t.Fatalf("sockets = %v", sockets)
	}
	code, body = getJSON(t, srv.URL+"/sockets/clean?sockets=nope")
	if code != http.StatusOK {
		t.Fatalf("clean: %d %v", code, body)
	}
}

func TestMetricsExposed(t *testing.T) {
	srv, _ := newServerForTest(t)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
}
