package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyFloatMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]float64
		ok   bool
	}{
		{"", map[int]float64{}, true},
		{"0=1.23,1=0.98", map[int]float64{0: 1.23, 1: 0.98}, true},
		{" 0 = 1 , 2 = -0.5", map[int]float64{0: 1.0, 2: -0.5}, true},
		{"bad", nil, false},
		{"x=1", nil, false},
		{"0=abc", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyFloatMap(tt.in)
		if !tt.ok {
			assert.Error(t, err, "parseKeyFloatMap(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseKeyFloatMap(%q)", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseKeyBoolMap(t *testing.T) {
	tests := []struct {
		in   string
		want map[int]bool
		ok   bool
	}{
		{"", map[int]bool{}, true},
		{"0=true,1=false", map[int]bool{0: true, 1: false}, true},
		{"0=true, 2=true", map[int]bool{0: true, 2: true}, true},
		{"bad", nil, false},
		{"0=maybe", nil, false},
	}
	for _, tt := range tests {
		got, err := parseKeyBoolMap(tt.in)
		if !tt.ok {
			assert.Error(t, err, "parseKeyBoolMap(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "parseKeyBoolMap(%q)", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseIntOrHex(t *testing.T) {
	v, err := parseIntOrHex("0x49")
	require.NoError(t, err)
	assert.Equal(t, 0x49, v)

	v, err = parseIntOrHex("72")
	require.NoError(t, err)
	assert.Equal(t, 72, v)

	_, err = parseIntOrHex("0xZZ")
	assert.Error(t, err)
}

func applyArgs(t *testing.T, cfg *Config, args ...string) error {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f := RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return f.Apply(cfg)
}

func TestApplyOnlyChangedFlags(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, applyArgs(t, &cfg))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	err := applyArgs(t, &cfg,
		"--sensor-type", "simulation",
		"--i2c-address", "0x49",
		"--sample-count", "2000",
		"--resolution", "10",
		"--channels", "1,2",
		"--scale-factors", "1=30,2=100",
		"--cutoffs", "2=0",
		"--sim-peaks", "1=0.5",
		"--outputs", "console,mqtt",
		"--output-intervals", "mqtt=5000",
		"--mqtt-server", "tcp://broker:1883",
		"--mqtt-topic", "home/ct/%d",
	)
	require.NoError(t, err)

	assert.Equal(t, SensorSimulation, cfg.SensorType)
	assert.Equal(t, 0x49, cfg.ADS1115.Address)
	assert.Equal(t, 2000, cfg.SampleCount)
	assert.Equal(t, 10, cfg.Resolution)
	assert.Equal(t, map[int]float64{1: 0.5}, cfg.Simulation.PeakVoltages)

	enabled := cfg.EnabledChannels()
	require.Len(t, enabled, 2)
	assert.Equal(t, 1, enabled[0].Channel)
	assert.Equal(t, float32(30), enabled[0].Calibration().ScaleFactor)
	assert.Equal(t, float32(0.5), enabled[0].Calibration().Cutoff)
	assert.Equal(t, 2, enabled[1].Channel)
	assert.Equal(t, float32(100), enabled[1].Calibration().ScaleFactor)
	assert.Equal(t, float32(0), enabled[1].Calibration().Cutoff)
	assert.False(t, cfg.Channels[0].Enabled, "channel 0 not listed")

	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, 1000, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, 5000, cfg.Outputs[1].IntervalMs)
	require.NotNil(t, cfg.Outputs[1].MQTT)
	assert.Equal(t, "tcp://broker:1883", cfg.Outputs[1].MQTT.Server)
	assert.Equal(t, "home/ct/%d", cfg.Outputs[1].MQTT.StateTopic)
	assert.NoError(t, cfg.Validate())
}

func TestApplyFlagsCreatesOutputs(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, applyArgs(t, &cfg, "--mqtt-user", "ct", "--http-listen", ":8080", "--enabled", "3=true"))

	require.Len(t, cfg.Outputs, 3)
	assert.Equal(t, OutputMQTT, cfg.Outputs[1].Type)
	assert.Equal(t, "ct", cfg.Outputs[1].MQTT.Username)
	assert.Equal(t, OutputHTTP, cfg.Outputs[2].Type)
	assert.Equal(t, ":8080", cfg.Outputs[2].HTTP.Listen)
	assert.Len(t, cfg.EnabledChannels(), 2)
}

func TestApplyFlagsErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--i2c-address", "nope"},
		{"--channels", "a"},
		{"--scale-factors", "0"},
		{"--enabled", "0=perhaps"},
		{"--output-intervals", "console"},
	} {
		cfg := DefaultConfig()
		assert.Error(t, applyArgs(t, &cfg, args...), "%v", args)
	}
}
