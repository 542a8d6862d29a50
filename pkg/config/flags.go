package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Flags holds command line overrides. Only flags that were set on the
// command line are applied.
type Flags struct {
	fs *pflag.FlagSet

	sensorType      string
	i2cBus          string
	i2cAddress      string
	sampleRate      int
	serialPort      string
	baudRate        int
	sampleCount     int
	resolution      int
	intervalMs      int
	channels        string
	enabled         string
	scaleFactors    string
	cutoffs         string
	midRails        string
	simPeaks        string
	outputs         string
	outputIntervals string
	mqttServer      string
	mqttUser        string
	mqttPass        string
	mqttClientID    string
	mqttTopic       string
	httpListen      string
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.sensorType, "sensor-type", "", "sensor type: ads1115|serial|simulation")
	fs.StringVar(&f.i2cBus, "i2c-bus", "", "I2C bus (e.g., '2' -> /dev/i2c-2)")
	fs.StringVar(&f.i2cAddress, "i2c-address", "", "I2C address (decimal or 0x hex)")
	fs.IntVar(&f.sampleRate, "sample-rate", 0, "ADS1115 sample rate (SPS)")
	fs.StringVar(&f.serialPort, "serial-port", "", "serial port of the bridge firmware")
	fs.IntVar(&f.baudRate, "baud-rate", 0, "serial baud rate")
	fs.IntVar(&f.sampleCount, "sample-count", 0, "samples per current estimate")
	fs.IntVar(&f.resolution, "resolution", 0, "conversion resolution in bits")
	fs.IntVar(&f.intervalMs, "interval-ms", 0, "read interval in ms")
	fs.StringVar(&f.channels, "channels", "", "Comma-separated enabled channels e.g. 0,1")
	fs.StringVar(&f.enabled, "enabled", "", "Per-channel enable e.g. 0=true,1=false")
	fs.StringVar(&f.scaleFactors, "scale-factors", "", "Per-channel amps per RMS volt e.g. 0=30,1=100")
	fs.StringVar(&f.cutoffs, "cutoffs", "", "Per-channel noise floor in amps e.g. 0=0.2")
	fs.StringVar(&f.midRails, "mid-rails", "", "Per-channel bias voltage e.g. 0=1.65")
	fs.StringVar(&f.simPeaks, "sim-peaks", "", "Per-channel simulated peak voltage e.g. 0=1.0,1=0.1")
	fs.StringVar(&f.outputs, "outputs", "", "Comma-separated outputs (console,mqtt,http)")
	fs.StringVar(&f.outputIntervals, "output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	fs.StringVar(&f.mqttServer, "mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.StringVar(&f.mqttUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.mqttPass, "mqtt-pass", "", "MQTT password")
	fs.StringVar(&f.mqttClientID, "mqtt-client-id", "", "MQTT client id")
	fs.StringVar(&f.mqttTopic, "mqtt-topic", "", "MQTT state topic, %d is replaced by the channel")
	fs.StringVar(&f.httpListen, "http-listen", "", "HTTP output listen address")
	return f
}

func (f *Flags) changed(name string) bool {
	return f.fs.Changed(name)
}

// Apply copies the flags that were set onto cfg.
func (f *Flags) Apply(cfg *Config) error {
	if f.changed("sensor-type") {
		cfg.SensorType = f.sensorType
	}
	if f.changed("i2c-bus") {
		cfg.ADS1115.Bus = f.i2cBus
	}
	if f.changed("i2c-address") {
		v, err := parseIntOrHex(f.i2cAddress)
		if err != nil {
			return fmt.Errorf("i2c-address: %w", err)
		}
		cfg.ADS1115.Address = v
	}
	if f.changed("sample-rate") {
		cfg.ADS1115.SampleRate = f.sampleRate
	}
	if f.changed("serial-port") {
		cfg.Serial.Port = f.serialPort
	}
	if f.changed("baud-rate") {
		cfg.Serial.BaudRate = f.baudRate
	}
	if f.changed("sample-count") {
		cfg.SampleCount = f.sampleCount
	}
	if f.changed("resolution") {
		cfg.Resolution = f.resolution
	}
	if f.changed("interval-ms") {
		cfg.IntervalMs = f.intervalMs
	}

	if f.changed("channels") {
		chs, err := parseChannels(f.channels)
		if err != nil {
			return err
		}
		want := map[int]bool{}
		for _, ch := range chs {
			want[ch] = true
		}
		for i := range cfg.Channels {
			cfg.Channels[i].Enabled = want[cfg.Channels[i].Channel]
			delete(want, cfg.Channels[i].Channel)
		}
		for _, ch := range chs {
			if want[ch] {
				cfg.Channels = append(cfg.Channels, ChannelConfig{Channel: ch, Enabled: true})
			}
		}
	}
	if f.changed("enabled") {
		m, err := parseKeyBoolMap(f.enabled)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		for ch, v := range m {
			channelFor(cfg, ch).Enabled = v
		}
	}
	floatOverrides := []struct {
		name  string
		value string
		set   func(*ChannelConfig, float32)
	}{
		{"scale-factors", f.scaleFactors, func(c *ChannelConfig, v float32) { c.ScaleFactor = &v }},
		{"cutoffs", f.cutoffs, func(c *ChannelConfig, v float32) { c.Cutoff = &v }},
		{"mid-rails", f.midRails, func(c *ChannelConfig, v float32) { c.MidRail = &v }},
	}
	for _, o := range floatOverrides {
		if !f.changed(o.name) {
			continue
		}
		m, err := parseKeyFloatMap(o.value)
		if err != nil {
			return fmt.Errorf("%s: %w", o.name, err)
		}
		for _, ch := range sortedKeys(m) {
			o.set(channelFor(cfg, ch), float32(m[ch]))
		}
	}
	if f.changed("sim-peaks") {
		m, err := parseKeyFloatMap(f.simPeaks)
		if err != nil {
			return fmt.Errorf("sim-peaks: %w", err)
		}
		cfg.Simulation.PeakVoltages = m
	}

	if f.changed("outputs") {
		parts := parseCSV(f.outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.IntervalMs})
		}
		cfg.Outputs = outs
	}
	if f.changed("output-intervals") {
		for _, p := range parseCSV(f.outputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("output-intervals: invalid pair %q", p)
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				return fmt.Errorf("output-intervals: %w", err)
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}

	if f.changed("mqtt-server") || f.changed("mqtt-user") || f.changed("mqtt-pass") || f.changed("mqtt-client-id") || f.changed("mqtt-topic") {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputMQTT {
				f.applyMQTT(&cfg.Outputs[i])
				applied = true
			}
		}
		if !applied {
			out := OutputConfig{Type: OutputMQTT, IntervalMs: cfg.IntervalMs}
			f.applyMQTT(&out)
			cfg.Outputs = append(cfg.Outputs, out)
		}
	}
	if f.changed("http-listen") {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == OutputHTTP {
				cfg.Outputs[i].HTTP = &HTTPConfig{Listen: f.httpListen}
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: OutputHTTP, IntervalMs: cfg.IntervalMs, HTTP: &HTTPConfig{Listen: f.httpListen}})
		}
	}

	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}
	return nil
}

func (f *Flags) applyMQTT(out *OutputConfig) {
	if out.MQTT == nil {
		out.MQTT = &MQTTConfig{}
	}
	if f.changed("mqtt-server") {
		out.MQTT.Server = f.mqttServer
	}
	if f.changed("mqtt-user") {
		out.MQTT.Username = f.mqttUser
	}
	if f.changed("mqtt-pass") {
		out.MQTT.Password = f.mqttPass
	}
	if f.changed("mqtt-client-id") {
		out.MQTT.ClientID = f.mqttClientID
	}
	if f.changed("mqtt-topic") {
		out.MQTT.StateTopic = f.mqttTopic
	}
}

// channelFor returns the config of ch, appending a disabled one if missing.
func channelFor(cfg *Config, ch int) *ChannelConfig {
	for i := range cfg.Channels {
		if cfg.Channels[i].Channel == ch {
			return &cfg.Channels[i]
		}
	}
	cfg.Channels = append(cfg.Channels, ChannelConfig{Channel: ch})
	return &cfg.Channels[len(cfg.Channels)-1]
}

func sortedKeys(m map[int]float64) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	return strconv.Atoi(s)
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	out := make([]int, 0)
	for _, t := range parseCSV(s) {
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseKeyPairs splits "k=v,k=v" into integer keys and raw values.
func parseKeyPairs(s string, fn func(key int, value string) error) error {
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("invalid pair %q", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return fmt.Errorf("invalid key %q: %w", kv[0], err)
		}
		if err := fn(k, strings.TrimSpace(kv[1])); err != nil {
			return fmt.Errorf("invalid value for %d: %w", k, err)
		}
	}
	return nil
}

func parseKeyFloatMap(s string) (map[int]float64, error) {
	out := map[int]float64{}
	err := parseKeyPairs(s, func(k int, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		out[k] = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	out := map[int]bool{}
	err := parseKeyPairs(s, func(k int, v string) error {
		b, err := strconv.ParseBool(v)
		out[k] = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
