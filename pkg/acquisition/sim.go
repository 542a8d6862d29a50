package acquisition

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

// SimulatorConfig describes the waveform produced by a Simulator.
type SimulatorConfig struct {
	ReferenceVoltage float64         // volts at full scale
	MidRail          float64         // bias voltage the wave is centred on
	PeakVoltage      float64         // default fundamental peak (V) for every channel
	PeakVoltages     map[int]float64 // per-channel override of PeakVoltage
	SamplesPerCycle  int
	Harmonic         float64 // third harmonic amplitude relative to the fundamental
	Noise            float64 // standard deviation of added noise (V)
	Seed             int64
}

// DefaultSimulatorConfig returns a 1V peak (about 35A on a 50A/1V
// transformer) wave sampled 100 times per cycle.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		ReferenceVoltage: 3.3,
		MidRail:          1.65,
		PeakVoltage:      1.0,
		SamplesPerCycle:  100,
		Seed:             1,
	}
}

// Simulator synthesizes a biased AC waveform per channel.
type Simulator struct {
	cfg     SimulatorConfig
	bits    int
	phase   map[int]int
	enabled map[int]bool
	rnd     *rand.Rand
	mu      sync.Mutex
}

// NewSimulator returns a simulator producing 12-bit samples until
// SetResolution is called.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.SamplesPerCycle <= 0 {
		cfg.SamplesPerCycle = DefaultSimulatorConfig().SamplesPerCycle
	}
	if cfg.ReferenceVoltage <= 0 {
		cfg.ReferenceVoltage = DefaultSimulatorConfig().ReferenceVoltage
	}
	return &Simulator{
		cfg:     cfg,
		bits:    sct013.DefaultResolution,
		phase:   make(map[int]int),
		enabled: make(map[int]bool),
		rnd:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulator) SetMode(channel int, mode sct013.Mode) error {
	if channel < 0 {
		return fmt.Errorf("invalid channel %d", channel)
	}
	s.mu.Lock()
	s.enabled[channel] = true
	s.mu.Unlock()
	return nil
}

func (s *Simulator) SetResolution(bits int) error {
	if bits < 1 || bits > 24 {
		return fmt.Errorf("resolution %d bits out of range 1..24", bits)
	}
	s.mu.Lock()
	s.bits = bits
	s.mu.Unlock()
	return nil
}

func (s *Simulator) ReadRaw(channel int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled[channel] {
		return 0, fmt.Errorf("channel %d not configured", channel)
	}

	peak := s.cfg.PeakVoltage
	if v, ok := s.cfg.PeakVoltages[channel]; ok {
		peak = v
	}
	i := s.phase[channel]
	s.phase[channel] = (i + 1) % s.cfg.SamplesPerCycle

	theta := 2 * math.Pi * float64(i) / float64(s.cfg.SamplesPerCycle)
	v := s.cfg.MidRail + peak*(math.Sin(theta)+s.cfg.Harmonic*math.Sin(3*theta))
	if s.cfg.Noise > 0 {
		v += s.cfg.Noise * s.rnd.NormFloat64()
	}

	fs := float64(sct013.FullScaleForBits(s.bits))
	raw := int(math.Round(v / s.cfg.ReferenceVoltage * fs))
	if raw < 0 {
		raw = 0
	}
	if raw > int(fs) {
		raw = int(fs)
	}
	return raw, nil
}

// Close is a no-op.
func (s *Simulator) Close() error { return nil }
