package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

type Config struct {
	PCA9685   PCA9685Config   `yaml:"pca9685"`
	Channels  []ChannelConfig `yaml:"channels"`
	Fan       FanConfig       `yaml:"fan"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type PCA9685Config struct {
	// Backend is "devfs" (Linux /dev/i2c-N ioctl) or "periph".
	Backend string `yaml:"backend"`
	// Bus is a device path for devfs, or a periph bus name ("1", "I2C1", "").
	Bus     string `yaml:"bus"`
	Address uint16 `yaml:"address"`

	OscillatorHz     uint32 `yaml:"oscillator_hz"`
	ExtClockPrescale uint8  `yaml:"ext_clock_prescale"`

	// Frequency accepts a plain number of Hz or a unit string ("50Hz", "1kHz").
	Frequency   string  `yaml:"frequency"`
	FrequencyHz float64 `yaml:"-"`

	OutputMode string `yaml:"output_mode"`
	Trace      bool   `yaml:"trace"`

	OutputEnable OutputEnableConfig `yaml:"output_enable"`
}

type OutputEnableConfig struct {
	Chip string `yaml:"chip"`
	Line string `yaml:"line"`
}

// ChannelConfig is a preset applied to one output at startup. Exactly one of
// PulseUs and Duty must be set.
type ChannelConfig struct {
	Channel int     `yaml:"channel"`
	Name    string  `yaml:"name"`
	PulseUs *uint16 `yaml:"pulse_us"`
	Duty    *uint16 `yaml:"duty"`
	Invert  bool    `yaml:"invert"`
}

type FanConfig struct {
	Enable         bool          `yaml:"enable"`
	Channel        int           `yaml:"channel"`
	Invert         bool          `yaml:"invert"`
	TempPath       string        `yaml:"temp_path"`
	TempTargetC    float64       `yaml:"temp_target_c"`
	DutyMin        int           `yaml:"duty_min"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

type WebConfig struct {
	Enable         bool          `yaml:"enable"`
	Listen         string        `yaml:"listen"`
	StreamInterval time.Duration `yaml:"stream_interval"`
	LogLines       int           `yaml:"log_lines"`
}

type TelemetryConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
}

const (
	BackendDevfs  = "devfs"
	BackendPeriph = "periph"

	OutputTotemPole = "totem_pole"
	OutputOpenDrain = "open_drain"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	p := &cfg.PCA9685
	if p.Backend == "" {
		p.Backend = BackendDevfs
	}
	switch p.Backend {
	case BackendDevfs:
		if p.Bus == "" {
			p.Bus = "/dev/i2c-1"
		}
	case BackendPeriph:
		// Empty bus selects periph's first registered bus.
	default:
		return fmt.Errorf("pca9685.backend must be %q or %q", BackendDevfs, BackendPeriph)
	}
	if p.Address == 0 {
		p.Address = 0x40
	}
	if p.Address > 0x7F {
		return fmt.Errorf("pca9685.address must be a 7-bit address")
	}
	if p.OscillatorHz == 0 {
		p.OscillatorHz = 25_000_000
	}
	if p.ExtClockPrescale != 0 && p.ExtClockPrescale < 3 {
		return fmt.Errorf("pca9685.ext_clock_prescale must be 0 or >= 3")
	}
	if strings.TrimSpace(p.Frequency) != "" {
		if p.ExtClockPrescale != 0 {
			return fmt.Errorf("pca9685.frequency cannot be used with pca9685.ext_clock_prescale")
		}
		hz, err := ParseFrequency(p.Frequency)
		if err != nil {
			return fmt.Errorf("pca9685.frequency: %w", err)
		}
		p.FrequencyHz = hz
	}
	switch p.OutputMode {
	case "", OutputTotemPole, OutputOpenDrain:
	default:
		return fmt.Errorf("pca9685.output_mode must be %q or %q", OutputTotemPole, OutputOpenDrain)
	}
	if p.OutputEnable.Chip != "" && p.OutputEnable.Line == "" {
		return fmt.Errorf("pca9685.output_enable.line is required when pca9685.output_enable.chip is set")
	}

	seen := make(map[int]string, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.Channel < 0 || ch.Channel > 15 {
			return fmt.Errorf("channels[%d].channel must be in [0,15]", i)
		}
		if prev, ok := seen[ch.Channel]; ok {
			return fmt.Errorf("channels[%d]: channel %d already configured by %s", i, ch.Channel, prev)
		}
		seen[ch.Channel] = fmt.Sprintf("channels[%d]", i)
		if (ch.PulseUs == nil) == (ch.Duty == nil) {
			return fmt.Errorf("channels[%d]: exactly one of pulse_us or duty is required", i)
		}
		if ch.Duty != nil && *ch.Duty > 4095 {
			return fmt.Errorf("channels[%d].duty must be in [0,4095]", i)
		}
		if ch.Name == "" {
			cfg.Channels[i].Name = fmt.Sprintf("ch%d", ch.Channel)
		}
	}

	if cfg.Fan.Enable {
		if cfg.Fan.Channel < 0 || cfg.Fan.Channel > 15 {
			return fmt.Errorf("fan.channel must be in [0,15]")
		}
		if prev, ok := seen[cfg.Fan.Channel]; ok {
			return fmt.Errorf("fan.channel %d already configured by %s", cfg.Fan.Channel, prev)
		}
	}
	if cfg.Fan.TempTargetC == 0 {
		cfg.Fan.TempTargetC = 50.0
	}
	if cfg.Fan.DutyMin < 0 || cfg.Fan.DutyMin > 100 {
		return fmt.Errorf("fan.duty_min must be in [0,100]")
	}
	if cfg.Fan.UpdateInterval <= 0 {
		cfg.Fan.UpdateInterval = 5 * time.Second
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}
	if cfg.Web.StreamInterval <= 0 {
		cfg.Web.StreamInterval = 1 * time.Second
	}
	if cfg.Web.LogLines <= 0 {
		cfg.Web.LogLines = 2000
	}

	if cfg.Telemetry.Enable && cfg.Telemetry.Dest == "" {
		return fmt.Errorf("telemetry.dest is required when telemetry.enable is true")
	}
	if cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = 1 * time.Second
	}
	return nil
}

// ParseFrequency accepts "50", "50Hz", "1.5kHz" and returns Hz.
func ParseFrequency(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("frequency %q is not finite", s)
		}
		if v <= 0 {
			return 0, fmt.Errorf("frequency must be > 0")
		}
		return v, nil
	}
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("frequency must be > 0")
	}
	return float64(f) / float64(physic.Hertz), nil
}

// TotemPole reports whether the configured output mode is totem-pole. The
// second result is false when no mode is configured.
func (p PCA9685Config) TotemPole() (totemPole bool, ok bool) {
	switch p.OutputMode {
	case OutputTotemPole:
		return true, true
	case OutputOpenDrain:
		return false, true
	}
	return false, false
}
