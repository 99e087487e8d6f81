package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/stitcher/job"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `machine:
  feedrate: 3000
  z_travel: 8
  trigger_port: 2
  sync_mode: true
  stop_delay: 40ms
  lookahead_stop: false
  jump_settle: 250ms
  jump_output: true
  jump_output_port: 5
  cycle_output_port: 6
  trigger_debounce: 10ms
  queue_size: 16
  min_planner_slots: 4
  tajima_palette: [red, green, blue]

runtime:
  tick_rate: 2ms
  speedup: 10
  block_buffer: 32
  needle_rpm: 800
  event_buffer: 512

storage:
  dataset: stitcher
  backend: s3
  path: my-bucket/prefix
  region: us-east-1
  endpoint: https://example.com
  s3_path_style: true

policy:
  name: buffered
  buffer_events: 1000
  buffer_bytes: 10485760

adapter:
  type: webhook
  url: https://hooks.example.com/stitcher
  headers:
    Authorization: Bearer token123
  timeout: 10s
  retries: 3
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Machine
	m := cfg.Machine
	if m.Feedrate != 3000 || m.TriggerPort != 2 || !m.SyncMode {
		t.Errorf("machine = %+v", m)
	}
	if m.StopDelay.Duration != 40*time.Millisecond {
		t.Errorf("stop_delay = %v, want 40ms", m.StopDelay.Duration)
	}
	if m.LookaheadStop == nil || *m.LookaheadStop {
		t.Error("expected lookahead_stop=false")
	}
	if len(m.TajimaPalette) != 3 || m.TajimaPalette[2] != "blue" {
		t.Errorf("tajima_palette = %v", m.TajimaPalette)
	}

	// Runtime
	if cfg.Runtime.TickRate.Duration != 2*time.Millisecond || cfg.Runtime.Speedup != 10 {
		t.Errorf("runtime = %+v", cfg.Runtime)
	}

	// Storage
	assertEqual(t, "storage.backend", cfg.Storage.Backend, "s3")
	assertEqual(t, "storage.path", cfg.Storage.Path, "my-bucket/prefix")
	assertEqual(t, "storage.region", cfg.Storage.Region, "us-east-1")
	assertEqual(t, "storage.endpoint", cfg.Storage.Endpoint, "https://example.com")
	if !cfg.Storage.S3PathStyle {
		t.Error("expected storage.s3_path_style=true")
	}

	// Policy
	assertEqual(t, "policy.name", cfg.Policy.Name, "buffered")
	if cfg.Policy.BufferEvents != 1000 {
		t.Errorf("expected buffer_events=1000, got %d", cfg.Policy.BufferEvents)
	}
	if cfg.Policy.BufferBytes != 10485760 {
		t.Errorf("expected buffer_bytes=10485760, got %d", cfg.Policy.BufferBytes)
	}

	// Adapter
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/stitcher")
	assertEqual(t, "adapter.headers.Authorization", cfg.Adapter.Headers["Authorization"], "Bearer token123")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("expected adapter.timeout=10s, got %v", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 3 {
		t.Errorf("expected adapter.retries=3, got %v", cfg.Adapter.Retries)
	}
}

func TestMachineConfig_Settings(t *testing.T) {
	t.Run("empty keeps defaults", func(t *testing.T) {
		got := MachineConfig{}.Settings()
		want := job.DefaultSettings()
		want.CycleOutputPort = -1
		if got != want {
			t.Errorf("Settings() = %+v, want %+v", got, want)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("default settings invalid: %v", err)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		zero := 0.0
		off := false
		port := 3
		debounce := Duration{5 * time.Millisecond}
		got := MachineConfig{
			Feedrate:        2500,
			ZTravel:         &zero,
			SyncMode:        true,
			TriggerPort:     1,
			LookaheadStop:   &off,
			JumpSettle:      Duration{100 * time.Millisecond},
			CycleOutputPort: &port,
			TriggerDebounce: &debounce,
			QueueSize:       32,
		}.Settings()

		if got.Feedrate != 2500 || got.ZTravel != 0 || !got.SyncMode || got.TriggerPort != 1 {
			t.Errorf("Settings() = %+v", got)
		}
		if got.LookaheadStop {
			t.Error("lookahead_stop override ignored")
		}
		if got.JumpSettle != 100*time.Millisecond || got.TriggerDebounce != 5*time.Millisecond {
			t.Errorf("durations = %v, %v", got.JumpSettle, got.TriggerDebounce)
		}
		if got.CycleOutputPort != 3 || got.QueueSize != 32 {
			t.Errorf("ports/queue = %d, %d", got.CycleOutputPort, got.QueueSize)
		}
	})
}

func TestConfig_Sim(t *testing.T) {
	cfg := &Config{
		Machine: MachineConfig{TriggerPort: 4},
		Runtime: RuntimeConfig{Speedup: 20, BlockBuffer: 8},
	}
	sim := cfg.Sim()
	if sim.Speedup != 20 || sim.BlockBuffer != 8 {
		t.Errorf("Sim() = %+v", sim)
	}
	if len(sim.InterruptPorts) != 1 || sim.InterruptPorts[0] != 4 {
		t.Errorf("InterruptPorts = %v, want [4]", sim.InterruptPorts)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for name, content := range map[string]string{
		"empty":         "",
		"whitespace":    "   \n  \n  \n",
		"comments only": "# This is a comment\n# Another comment\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, content))
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Policy.Name != "" || cfg.Machine.Feedrate != 0 {
				t.Errorf("expected zero config, got %+v", cfg)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "machine: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("STITCHER_HOOK", "https://hooks.example.com/x")

	path := writeTemp(t, "adapter:\n  url: ${STITCHER_HOOK}\n  type: ${STITCHER_ADAPTER:-webhook}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/x")
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	tests := []struct {
		name, yaml, key string
	}{
		{"top level", "bogus_key: should_fail\n", "bogus_key"},
		{"nested", "storage:\n  backend: fs\n  unknown_field: bad\n", "unknown_field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error for unknown key, got nil")
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error should mention the unknown key, got: %v", err)
			}
		})
	}
}

func TestLoad_RetriesZeroDistinctFromNil(t *testing.T) {
	cfg, err := Load(writeTemp(t, "adapter:\n  type: webhook\n  retries: 0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries == nil || *cfg.Adapter.Retries != 0 {
		t.Fatalf("expected retries=*int(0), got %v", cfg.Adapter.Retries)
	}

	cfg, err = Load(writeTemp(t, "adapter:\n  type: webhook\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Adapter.Retries != nil {
		t.Errorf("expected retries to be nil, got %d", *cfg.Adapter.Retries)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	path := writeTemp(t, "machine:\n  stop_delay: not-a-duration\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_RedisAdapterConfig(t *testing.T) {
	yaml := `adapter:
  type: redis
  url: redis://localhost:6379/0
  channel: shop:floor
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "adapter.type", cfg.Adapter.Type, "redis")
	assertEqual(t, "adapter.channel", cfg.Adapter.Channel, "shop:floor")
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stitcher.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
