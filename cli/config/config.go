package config

import (
	"fmt"
	"time"

	"github.com/pithecene-io/stitcher/job"
	"github.com/pithecene-io/stitcher/motion"
)

// Config represents a stitcher.yaml configuration file.
// All values are optional and act as defaults for stitcher run flags.
// CLI flags always override config values.
type Config struct {
	Machine MachineConfig `yaml:"machine"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Storage StorageConfig `yaml:"storage"`
	Policy  PolicyConfig  `yaml:"policy"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// MachineConfig holds job settings. Pointer fields distinguish "unset"
// from an explicit zero or false.
type MachineConfig struct {
	Feedrate        float64   `yaml:"feedrate"`
	ZTravel         *float64  `yaml:"z_travel,omitempty"`
	TriggerPort     int       `yaml:"trigger_port"`
	SyncMode        bool      `yaml:"sync_mode"`
	StopDelay       Duration  `yaml:"stop_delay"`
	LookaheadStop   *bool     `yaml:"lookahead_stop,omitempty"`
	JumpSettle      Duration  `yaml:"jump_settle"`
	JumpOutput      bool      `yaml:"jump_output"`
	JumpOutputPort  int       `yaml:"jump_output_port"`
	CycleOutputPort *int      `yaml:"cycle_output_port,omitempty"`
	TriggerDebounce *Duration `yaml:"trigger_debounce,omitempty"`
	QueueSize       int       `yaml:"queue_size"`
	MinPlannerSlots int       `yaml:"min_planner_slots"`

	// TajimaPalette names the threads of a Tajima file in stop order.
	TajimaPalette []string `yaml:"tajima_palette"`
}

// RuntimeConfig holds foreground loop and simulator defaults.
type RuntimeConfig struct {
	TickRate    Duration `yaml:"tick_rate"`
	Speedup     float64  `yaml:"speedup"`
	BlockBuffer int      `yaml:"block_buffer"`
	NeedleRPM   float64  `yaml:"needle_rpm"`
	EventBuffer int      `yaml:"event_buffer"`
}

// StorageConfig holds storage defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name          string   `yaml:"name"`
	BufferEvents  int      `yaml:"buffer_events"`
	BufferBytes   int64    `yaml:"buffer_bytes"`
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "15ms", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Settings overlays the machine section on job.DefaultSettings.
// Unset values keep their defaults.
func (m MachineConfig) Settings() job.Settings {
	s := job.DefaultSettings()
	if m.Feedrate > 0 {
		s.Feedrate = m.Feedrate
	}
	if m.ZTravel != nil {
		s.ZTravel = *m.ZTravel
	}
	s.SyncMode = m.SyncMode
	s.TriggerPort = m.TriggerPort
	s.StopDelay = m.StopDelay.Duration
	if m.LookaheadStop != nil {
		s.LookaheadStop = *m.LookaheadStop
	}
	s.JumpSettle = m.JumpSettle.Duration
	s.JumpOutput = m.JumpOutput
	s.JumpOutputPort = m.JumpOutputPort
	s.CycleOutputPort = -1
	if m.CycleOutputPort != nil {
		s.CycleOutputPort = *m.CycleOutputPort
	}
	if m.TriggerDebounce != nil {
		s.TriggerDebounce = m.TriggerDebounce.Duration
	}
	if m.QueueSize > 0 {
		s.QueueSize = m.QueueSize
	}
	if m.MinPlannerSlots > 0 {
		s.MinPlannerSlots = m.MinPlannerSlots
	}
	return s
}

// Sim returns the simulator config. The trigger port is the only
// interrupt-capable input.
func (c *Config) Sim() motion.Config {
	return motion.Config{
		BlockBuffer:    c.Runtime.BlockBuffer,
		NeedleRPM:      c.Runtime.NeedleRPM,
		Speedup:        c.Runtime.Speedup,
		InterruptPorts: []int{c.Machine.TriggerPort},
	}
}
