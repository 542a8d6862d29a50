// Package sct013 estimates the RMS current through an SCT-013 style current
// transformer from raw ADC counts.
//
// A Sensor owns one acquisition channel. It is not safe for concurrent use:
// callers that share a Sensor between goroutines must serialize Configure,
// Initialize and estimation calls themselves.
package sct013

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/sirupsen/logrus"
)

// Sensor is one current transformer wired to one acquisition channel.
type Sensor struct {
	channel    int
	acq        Acquisition
	cal        Calibration
	resolution int
}

// Measurement is the detailed result of one estimation.
type Measurement struct {
	Current    float64 // amperes, zero when suppressed by the cutoff
	Unfiltered float64 // amperes before the cutoff is applied
	RMSVoltage float64 // RMS of the bias-corrected voltage
	MeanRaw    float64
	MinRaw     int
	MaxRaw     int
	Samples    int
	Suppressed bool // Unfiltered fell below the cutoff
}

// NewSensor binds a sensor to channel on acq using DefaultCalibration.
func NewSensor(channel int, acq Acquisition) *Sensor {
	return &Sensor{channel: channel, acq: acq, cal: DefaultCalibration()}
}

// Channel returns the acquisition channel owned by s.
func (s *Sensor) Channel() int { return s.channel }

// Calibration returns the calibration currently applied.
func (s *Sensor) Calibration() Calibration { return s.cal }

// Resolution returns the bit count requested by Initialize, or 0 before it ran.
func (s *Sensor) Resolution() int { return s.resolution }

// Configure replaces every calibration parameter. Values are not checked
// here; an unusable calibration is reported by the next estimation.
func (s *Sensor) Configure(cal Calibration) {
	s.cal = cal
}

// Initialize configures the channel as an input and requests
// DefaultResolution from the converter.
func (s *Sensor) Initialize() error {
	return s.InitializeResolution(DefaultResolution)
}

// InitializeResolution is Initialize with an explicit bit count.
func (s *Sensor) InitializeResolution(bits int) error {
	if err := s.acq.SetMode(s.channel, ModeInput); err != nil {
		return fmt.Errorf("set mode channel %d: %w", s.channel, err)
	}
	if err := s.acq.SetResolution(bits); err != nil {
		return fmt.Errorf("set resolution %d bits: %w", bits, err)
	}
	s.resolution = bits

	if fs := FullScaleForBits(s.resolution); s.cal.FullScale != fs {
		logrus.WithFields(logrus.Fields{
			"channel":    s.channel,
			"resolution": s.resolution,
			"fullScale":  s.cal.FullScale,
			"expected":   fs,
		}).Warn("calibration full scale does not match converter resolution")
	}
	return nil
}

// EstimateCurrent samples the channel sampleCount times and returns the
// calibrated RMS current in amperes, or 0 when it is below the cutoff.
func (s *Sensor) EstimateCurrent(sampleCount int) (float64, error) {
	m, err := s.Measure(sampleCount)
	if err != nil {
		return 0, err
	}
	return m.Current, nil
}

// Measure is EstimateCurrent with the intermediate values kept.
func (s *Sensor) Measure(sampleCount int) (Measurement, error) {
	if sampleCount <= 0 {
		return Measurement{}, fmt.Errorf("%w: got %d", ErrNoSamples, sampleCount)
	}
	cal := s.cal
	if err := cal.Validate(); err != nil {
		return Measurement{}, err
	}

	var sum, rawSum float64
	m := Measurement{Samples: sampleCount}
	for i := 0; i < sampleCount; i++ {
		raw, err := s.acq.ReadRaw(s.channel)
		if err != nil {
			return Measurement{}, fmt.Errorf("read sample %d on channel %d: %w", i, s.channel, err)
		}
		if i == 0 || raw < m.MinRaw {
			m.MinRaw = raw
		}
		if i == 0 || raw > m.MaxRaw {
			m.MaxRaw = raw
		}
		rawSum += float64(raw)

		ac := cal.Volts(raw) - cal.MidRail
		sum += float64(ac * ac)
	}

	rms := math32.Sqrt(float32(sum / float64(sampleCount)))
	current := rms * cal.ScaleFactor

	m.MeanRaw = rawSum / float64(sampleCount)
	m.RMSVoltage = float64(rms)
	m.Unfiltered = float64(current)
	if current < cal.Cutoff {
		m.Suppressed = true
		current = 0
	}
	m.Current = float64(current)
	return m, nil
}
