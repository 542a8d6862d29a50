package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ericogr/sct013-to-mqtt/pkg/acquisition"
	"github.com/ericogr/sct013-to-mqtt/pkg/config"
	"github.com/ericogr/sct013-to-mqtt/pkg/output"
	"github.com/ericogr/sct013-to-mqtt/pkg/output/console"
	httpout "github.com/ericogr/sct013-to-mqtt/pkg/output/http"
	mqttout "github.com/ericogr/sct013-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

var (
	logLevel   = "info"
	configPath = ""
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05.000",
		FullTimestamp:   true,
	})
	return nil
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	var flags *config.Flags

	cmd := &cobra.Command{
		Use:          "sct013-to-mqtt",
		Short:        "Measure AC current with SCT-013 transformers and publish it",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "Path to JSON or YAML config file")
	flags = config.RegisterFlags(globalFlags)

	cmd.AddCommand(
		newOnceCommand(flags),
		newPortsCommand(),
	)
	return cmd
}

func newOnceCommand(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Take one reading of every enabled channel and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			s, err := sensor.New(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			readings, err := s.Read()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(readings)
		},
	}
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports a bridge may be attached to",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := acquisition.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

// loadConfig reads the config file, applies flag overrides and validates.
func loadConfig(flags *config.Flags) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := flags.Apply(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	logrus.WithFields(logrus.Fields{
		"sensorType":  cfg.SensorType,
		"sampleCount": cfg.SampleCount,
		"intervalMs":  cfg.IntervalMs,
		"channels":    len(cfg.EnabledChannels()),
	}).Info("starting")

	if d := estimateReadDuration(cfg); d > time.Duration(cfg.IntervalMs)*time.Millisecond {
		logrus.Warnf("one read takes about %s, longer than interval %dms", d, cfg.IntervalMs)
	}

	s, err := sensor.New(cfg)
	if err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}
	defer s.Close()

	entries, err := initOutputs(&cfg, cfg.IntervalMs)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range entries {
			if err := e.Output.Close(); err != nil {
				logrus.Errorf("close %s output: %v", e.Type, err)
			}
		}
	}()

	return runLoop(ctx, s, entries, time.Duration(cfg.IntervalMs)*time.Millisecond)
}

type outputEntry struct {
	Type       string
	Output     output.Output
	IntervalMs int
	last       time.Time
}

func newOutput(o config.OutputConfig, channels []config.ChannelConfig) (output.Output, error) {
	switch strings.ToLower(o.Type) {
	case config.OutputConsole:
		return console.NewConsole(), nil
	case config.OutputMQTT:
		mc := config.MQTTConfig{}
		if o.MQTT != nil {
			mc = *o.MQTT
		}
		return mqttout.NewMQTT(mc, channels)
	case config.OutputHTTP:
		listen := ""
		if o.HTTP != nil {
			listen = o.HTTP.Listen
		}
		return httpout.NewHTTP(listen)
	default:
		return nil, fmt.Errorf("unknown output type %q", o.Type)
	}
}

// initOutputs creates every configured output. Outputs without an interval
// inherit defaultInterval.
func initOutputs(cfg *config.Config, defaultInterval int) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = defaultInterval
		}
		o, err := newOutput(cfg.Outputs[i], cfg.Channels)
		if err != nil {
			for _, e := range entries {
				e.Output.Close()
			}
			return nil, fmt.Errorf("output %s: %w", cfg.Outputs[i].Type, err)
		}
		entries = append(entries, outputEntry{Type: cfg.Outputs[i].Type, Output: o, IntervalMs: cfg.Outputs[i].IntervalMs})
	}
	return entries, nil
}

// estimateReadDuration is the conversion time of one Read when the backend
// has a known sample rate, or 0.
func estimateReadDuration(cfg config.Config) time.Duration {
	if cfg.SensorType != config.SensorADS1115 || cfg.ADS1115.SampleRate <= 0 {
		return 0
	}
	perSample := time.Duration(1000/cfg.ADS1115.SampleRate+2) * time.Millisecond
	return perSample * time.Duration(cfg.SampleCount*len(cfg.EnabledChannels()))
}

// publishDue sends readings to every output whose interval has elapsed.
func publishDue(entries []outputEntry, readings []sensor.Reading, now time.Time) {
	for i := range entries {
		e := &entries[i]
		if !e.last.IsZero() && now.Sub(e.last) < time.Duration(e.IntervalMs)*time.Millisecond {
			continue
		}
		if err := e.Output.Publish(readings); err != nil {
			logrus.WithField("output", e.Type).Errorf("publish: %v", err)
			continue
		}
		e.last = now
	}
}

func runLoop(ctx context.Context, s sensor.Sensor, entries []outputEntry, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		readings, err := s.Read()
		if err != nil {
			logrus.Errorf("read: %v", err)
		} else {
			publishDue(entries, readings, time.Now())
		}

		select {
		case <-ctx.Done():
			logrus.Info("stopping")
			return nil
		case <-ticker.C:
		}
	}
}
