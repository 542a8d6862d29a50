package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

const (
	SensorADS1115    = "ads1115"
	SensorSerial     = "serial"
	SensorSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputHTTP    = "http"
)

// ADS1115ReferenceVoltage is the ADS1115 input range at PGA ±4.096 V. Counts
// from that backend are volts relative to it, not to the board supply.
const ADS1115ReferenceVoltage = 4.096

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type OutputConfig struct {
	Type       string      `json:"type" yaml:"type"`
	IntervalMs int         `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	HTTP       *HTTPConfig `json:"http,omitempty" yaml:"http,omitempty"`
}

type ADS1115Config struct {
	Bus        string `json:"bus" yaml:"bus"`
	Address    int    `json:"address" yaml:"address"`
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
}

type SerialConfig struct {
	Port     string `json:"port" yaml:"port"`
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
}

type SimulationConfig struct {
	PeakVoltage     float64         `json:"peak_voltage" yaml:"peak_voltage"`
	PeakVoltages    map[int]float64 `json:"peak_voltages,omitempty" yaml:"peak_voltages,omitempty"`
	SamplesPerCycle int             `json:"samples_per_cycle" yaml:"samples_per_cycle"`
	Harmonic        float64         `json:"harmonic" yaml:"harmonic"`
	Noise           float64         `json:"noise" yaml:"noise"`
	Seed            int64           `json:"seed" yaml:"seed"`
}

// ChannelConfig describes one current transformer. Calibration fields left
// unset take the values of sct013.DefaultCalibration.
type ChannelConfig struct {
	Channel          int      `json:"channel" yaml:"channel"`
	Name             string   `json:"name,omitempty" yaml:"name,omitempty"`
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	ReferenceVoltage *float32 `json:"reference_voltage,omitempty" yaml:"reference_voltage,omitempty"`
	FullScale        *float32 `json:"full_scale,omitempty" yaml:"full_scale,omitempty"`
	MidRail          *float32 `json:"mid_rail,omitempty" yaml:"mid_rail,omitempty"`
	ScaleFactor      *float32 `json:"scale_factor,omitempty" yaml:"scale_factor,omitempty"`
	Cutoff           *float32 `json:"cutoff,omitempty" yaml:"cutoff,omitempty"`
}

// Calibration merges the channel overrides onto the default calibration.
func (c ChannelConfig) Calibration() sct013.Calibration {
	return c.CalibrationFrom(sct013.DefaultCalibration())
}

// CalibrationFrom merges the channel overrides onto base.
func (c ChannelConfig) CalibrationFrom(base sct013.Calibration) sct013.Calibration {
	cal := base
	if c.ReferenceVoltage != nil {
		cal.ReferenceVoltage = *c.ReferenceVoltage
	}
	if c.FullScale != nil {
		cal.FullScale = *c.FullScale
	}
	if c.MidRail != nil {
		cal.MidRail = *c.MidRail
	}
	if c.ScaleFactor != nil {
		cal.ScaleFactor = *c.ScaleFactor
	}
	if c.Cutoff != nil {
		cal.Cutoff = *c.Cutoff
	}
	return cal
}

// DisplayName returns Name or "channel N".
func (c ChannelConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("channel %d", c.Channel)
}

type Config struct {
	SensorType  string           `json:"sensor_type" yaml:"sensor_type"`
	ADS1115     ADS1115Config    `json:"ads1115" yaml:"ads1115"`
	Serial      SerialConfig     `json:"serial" yaml:"serial"`
	Simulation  SimulationConfig `json:"simulation" yaml:"simulation"`
	SampleCount int              `json:"sample_count" yaml:"sample_count"`
	Resolution  int              `json:"resolution" yaml:"resolution"`
	IntervalMs  int              `json:"interval_ms" yaml:"interval_ms"`
	Channels    []ChannelConfig  `json:"channels" yaml:"channels"`
	Outputs     []OutputConfig   `json:"outputs" yaml:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		SensorType: SensorADS1115,
		ADS1115: ADS1115Config{
			Bus:        "2",
			Address:    0x48,
			SampleRate: 860,
		},
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Simulation: SimulationConfig{
			PeakVoltage:     1.0,
			SamplesPerCycle: 100,
			Seed:            1,
		},
		SampleCount: 300,
		Resolution:  sct013.DefaultResolution,
		IntervalMs:  1000,
		Channels:    []ChannelConfig{{Channel: 0, Enabled: true}},
		Outputs:     []OutputConfig{{Type: OutputConsole, IntervalMs: 1000}},
	}
}

// Load reads a JSON or YAML (.yaml, .yml) file on top of DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to read config file %s", path)
	}
	// lists from the file replace the defaults instead of merging into them
	cfg.Channels = nil
	cfg.Outputs = nil
	if err := Unmarshal(b, filepath.Ext(path), &cfg); err != nil {
		return cfg, pkgerrors.Wrapf(err, "failed to parse config file %s", path)
	}
	cfg.ensureDefaults()
	return cfg, nil
}

// Unmarshal decodes b as YAML when ext is .yaml or .yml and as JSON otherwise.
func Unmarshal(b []byte, ext string, cfg *Config) error {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// Save writes cfg to path using the format implied by its extension.
func (c Config) Save(path string) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(c)
	default:
		b, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config")
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// ensureDefaults fills zero values left by a partial file.
func (c *Config) ensureDefaults() {
	def := DefaultConfig()
	if c.SensorType == "" {
		c.SensorType = def.SensorType
	}
	if c.ADS1115.Bus == "" {
		c.ADS1115.Bus = def.ADS1115.Bus
	}
	if c.ADS1115.Address == 0 {
		c.ADS1115.Address = def.ADS1115.Address
	}
	if c.ADS1115.SampleRate == 0 {
		c.ADS1115.SampleRate = def.ADS1115.SampleRate
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Simulation.SamplesPerCycle == 0 {
		c.Simulation.SamplesPerCycle = def.Simulation.SamplesPerCycle
	}
	if c.SampleCount == 0 {
		c.SampleCount = def.SampleCount
	}
	if c.Resolution == 0 {
		c.Resolution = def.Resolution
	}
	if c.IntervalMs == 0 {
		c.IntervalMs = def.IntervalMs
	}
	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	if len(c.Outputs) == 0 {
		c.Outputs = def.Outputs
	}
	for i := range c.Outputs {
		if c.Outputs[i].IntervalMs == 0 {
			c.Outputs[i].IntervalMs = c.IntervalMs
		}
	}
}

// BaseCalibration is the calibration a channel starts from before its own
// overrides: the full scale follows Resolution and the reference voltage
// follows the converter of SensorType.
func (c Config) BaseCalibration() sct013.Calibration {
	cal := sct013.DefaultCalibration()
	if c.Resolution > 0 {
		cal.FullScale = sct013.FullScaleForBits(c.Resolution)
	}
	if c.SensorType == SensorADS1115 {
		cal.ReferenceVoltage = ADS1115ReferenceVoltage
	}
	return cal
}

// ChannelCalibration returns the calibration applied to ch.
func (c Config) ChannelCalibration(ch ChannelConfig) sct013.Calibration {
	return ch.CalibrationFrom(c.BaseCalibration())
}

// EnabledChannels returns the channels that are sampled.
func (c Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// Validate checks the settings that would otherwise fail at runtime.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorADS1115, SensorSerial, SensorSimulation:
	default:
		return fmt.Errorf("unknown sensor type %q", c.SensorType)
	}
	if c.SampleCount <= 0 {
		return errors.New("sample-count must be > 0")
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.Resolution < 1 || c.Resolution > 16 {
		return fmt.Errorf("resolution %d bits out of range 1..16", c.Resolution)
	}
	if c.SensorType == SensorADS1115 && c.ADS1115.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.SensorType == SensorSerial && c.Serial.Port == "" {
		return errors.New("serial port is required")
	}

	seen := map[int]bool{}
	for _, ch := range c.Channels {
		if seen[ch.Channel] {
			return fmt.Errorf("channel %d configured twice", ch.Channel)
		}
		seen[ch.Channel] = true
		if c.SensorType == SensorADS1115 && (ch.Channel < 0 || ch.Channel > 3) {
			return fmt.Errorf("invalid channel %d", ch.Channel)
		}
		if !ch.Enabled {
			continue
		}
		if err := c.ChannelCalibration(ch).Validate(); err != nil {
			return fmt.Errorf("channel %d: %w", ch.Channel, err)
		}
	}
	if len(c.EnabledChannels()) == 0 {
		return errors.New("no enabled channels")
	}

	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case OutputConsole, OutputMQTT, OutputHTTP:
		default:
			return fmt.Errorf("unknown output %q", o.Type)
		}
	}
	return nil
}
