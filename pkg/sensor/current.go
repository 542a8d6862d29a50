package sensor

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ericogr/sct013-to-mqtt/pkg/acquisition"
	"github.com/ericogr/sct013-to-mqtt/pkg/config"
	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

// CurrentSensor estimates the current of every enabled channel sharing one
// acquisition backend.
type CurrentSensor struct {
	sensors     []*sct013.Sensor
	names       map[int]string
	sampleCount int
	closer      io.Closer
	mu          sync.Mutex

	now func() time.Time
}

// New opens the backend selected by cfg.SensorType.
func New(cfg config.Config) (Sensor, error) {
	var (
		acq    sct013.Acquisition
		closer io.Closer
	)
	switch cfg.SensorType {
	case config.SensorADS1115:
		a, err := acquisition.OpenADS1115(cfg.ADS1115.Bus, uint16(cfg.ADS1115.Address), cfg.ADS1115.SampleRate)
		if err != nil {
			return nil, err
		}
		acq, closer = a, a
	case config.SensorSerial:
		s, err := acquisition.OpenSerial(cfg.Serial.Port, cfg.Serial.BaudRate)
		if err != nil {
			return nil, err
		}
		acq, closer = s, s
	case config.SensorSimulation:
		sim := acquisition.NewSimulator(simulatorConfig(cfg))
		acq, closer = sim, sim
	default:
		return nil, fmt.Errorf("unknown sensor type %q", cfg.SensorType)
	}

	s, err := NewCurrentSensor(acq, cfg)
	if err != nil {
		closer.Close()
		return nil, err
	}
	s.closer = closer
	return s, nil
}

// NewCurrentSensor configures and initializes one sct013.Sensor per enabled
// channel on acq.
func NewCurrentSensor(acq sct013.Acquisition, cfg config.Config) (*CurrentSensor, error) {
	settings := buildChannelSettings(cfg)
	bits := cfg.Resolution
	if bits == 0 {
		bits = sct013.DefaultResolution
	}
	c := &CurrentSensor{
		sensors:     make([]*sct013.Sensor, 0, len(settings)),
		names:       make(map[int]string, len(settings)),
		sampleCount: cfg.SampleCount,
		now:         time.Now,
	}
	for _, st := range settings {
		s := sct013.NewSensor(st.channel, acq)
		s.Configure(st.cal)
		if err := s.InitializeResolution(bits); err != nil {
			return nil, fmt.Errorf("initialize channel %d: %w", st.channel, err)
		}
		logrus.WithFields(logrus.Fields{
			"channel":     st.channel,
			"name":        st.name,
			"scaleFactor": st.cal.ScaleFactor,
			"cutoff":      st.cal.Cutoff,
		}).Debug("channel initialized")
		c.sensors = append(c.sensors, s)
		c.names[st.channel] = st.name
	}
	return c, nil
}

// Read estimates every channel in turn. Channels are sampled sequentially
// because they share one converter.
func (c *CurrentSensor) Read() ([]Reading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Reading, 0, len(c.sensors))
	for _, s := range c.sensors {
		m, err := s.Measure(c.sampleCount)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", s.Channel(), err)
		}
		logrus.WithFields(logrus.Fields{
			"channel":    s.Channel(),
			"current":    m.Current,
			"unfiltered": m.Unfiltered,
			"minRaw":     m.MinRaw,
			"maxRaw":     m.MaxRaw,
		}).Trace("channel measured")
		out = append(out, Reading{
			Channel:    s.Channel(),
			Name:       c.names[s.Channel()],
			Current:    m.Current,
			RMSVoltage: m.RMSVoltage,
			Samples:    m.Samples,
			Suppressed: m.Suppressed,
			Timestamp:  c.now(),
		})
	}
	return out, nil
}

func (c *CurrentSensor) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func simulatorConfig(cfg config.Config) acquisition.SimulatorConfig {
	sc := acquisition.DefaultSimulatorConfig()
	sc.PeakVoltage = cfg.Simulation.PeakVoltage
	sc.PeakVoltages = cfg.Simulation.PeakVoltages
	sc.SamplesPerCycle = cfg.Simulation.SamplesPerCycle
	sc.Harmonic = cfg.Simulation.Harmonic
	sc.Noise = cfg.Simulation.Noise
	sc.Seed = cfg.Simulation.Seed
	// the simulated bias network follows the first enabled channel
	if chs := cfg.EnabledChannels(); len(chs) > 0 {
		cal := cfg.ChannelCalibration(chs[0])
		sc.ReferenceVoltage = float64(cal.ReferenceVoltage)
		sc.MidRail = float64(cal.MidRail)
	}
	return sc
}
