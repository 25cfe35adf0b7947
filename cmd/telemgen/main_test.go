package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/telemetry-generator/internal/config"
	"github.com/signalsfoundry/telemetry-generator/internal/logging"
	"github.com/signalsfoundry/telemetry-generator/kb"
	"github.com/signalsfoundry/telemetry-generator/model"
	"github.com/signalsfoundry/telemetry-generator/protocol/cot"
	"github.com/signalsfoundry/telemetry-generator/protocol/stanag"
)

func TestRunWritesCotToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.xml")

	cfg := config.Default()
	cfg.Agents = 2
	cfg.Accelerated = true
	cfg.Duration = 5 * time.Second
	cfg.Seed = 7
	cfg.Sinks = "file=" + path
	cfg.MetricsAddr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := run(ctx, cfg, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	// the XML header sits on its own line; every event fits on one line
	var events int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '<' || string(line[:5]) == "<?xml" {
			continue
		}
		e, err := cot.Decode(line)
		if err != nil {
			t.Fatalf("Decode %q: %v", line, err)
		}
		if e.UID != "agent-001" && e.UID != "agent-002" {
			t.Fatalf("unexpected uid %q", e.UID)
		}
		if e.Time == "" || e.Stale == "" {
			t.Fatalf("event not stamped from the simulation clock: %+v", e)
		}
		events++
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if events != 10 {
		t.Fatalf("events = %d, want 10", events)
	}
}

func TestRunWritesStanagFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.bin")

	cfg := config.Default()
	cfg.Protocol = stanag.Name
	cfg.Motion = model.MotionSourceStationary.String()
	cfg.Agents = 3
	cfg.Accelerated = true
	cfg.Duration = 2 * time.Second
	cfg.Sinks = "file"
	cfg.Target = path
	cfg.MetricsAddr = ""
	cfg.StreamID = 11

	if err := run(context.Background(), cfg, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	s := stanag.NewScanner(f)
	var frames int
	for s.Scan() {
		fr := s.Frame()
		if err := fr.Verify(); err != nil {
			t.Fatalf("frame %d: %v", frames, err)
		}
		if fr.Header.StreamID != 11 {
			t.Fatalf("stream id = %d", fr.Header.StreamID)
		}
		frames++
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scanner: %v", err)
	}
	if frames != 6 {
		t.Fatalf("frames = %d, want 6", frames)
	}
}

func TestRunLoadsScenario(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "fleet.json")
	fleet := `{"agents": [
		{"id": "rover", "motion": "random-walk", "max_velocity": 3},
		{"id": "mast", "motion": "stationary", "position": {"lat": 38.2, "lon": -109.7, "hae": 12}}
	]}`
	if err := os.WriteFile(scenario, []byte(fleet), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out := filepath.Join(dir, "events.xml")

	cfg := config.Default()
	cfg.Scenario = scenario
	cfg.Accelerated = true
	cfg.Duration = 3 * time.Second
	cfg.Sinks = "file=" + out
	cfg.MetricsAddr = ""
	if err := run(context.Background(), cfg, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	seen := map[string]int{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 || line[0] != '<' || string(line[:5]) == "<?xml" {
			continue
		}
		e, err := cot.Decode(line)
		if err != nil {
			t.Fatalf("Decode %q: %v", line, err)
		}
		if e.UID == "mast" && (e.Point.Lat != 38.2 || e.Point.Lon != -109.7) {
			t.Fatalf("mast moved to %+v", e.Point)
		}
		seen[e.UID]++
	}
	if seen["rover"] != 3 || seen["mast"] != 3 || len(seen) != 2 {
		t.Fatalf("events per agent = %v, want 3 each for rover and mast", seen)
	}
}

func TestAgentsHandler(t *testing.T) {
	store := kb.NewKnowledgeBase()
	if err := store.AddAgent(model.AgentDefinition{ID: "a1", Protocol: "cot", MotionSource: model.MotionSourceRandomWalk}); err != nil {
		t.Fatalf("AddAgent: %v", err)
	}

	rr := httptest.NewRecorder()
	agentsHandler(store).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/agents", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0]["id"] != "a1" || got[0]["motion_source"] != "random-walk" {
		t.Fatalf("body = %s", rr.Body.String())
	}

	rr = httptest.NewRecorder()
	agentsHandler(store).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/agents", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status = %d, want 405", rr.Code)
	}
}
