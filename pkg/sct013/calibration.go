package sct013

import (
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

// DefaultResolution is the conversion resolution requested by Initialize.
const DefaultResolution = 12

// Calibration holds the parameters that turn raw ADC counts into amperes.
type Calibration struct {
	ReferenceVoltage float32 `json:"reference_voltage" yaml:"reference_voltage"` // volts at full scale
	FullScale        float32 `json:"full_scale" yaml:"full_scale"`               // maximum raw count
	MidRail          float32 `json:"mid_rail" yaml:"mid_rail"`                   // bias network output (V)
	ScaleFactor      float32 `json:"scale_factor" yaml:"scale_factor"`           // amps per RMS volt
	Cutoff           float32 `json:"cutoff" yaml:"cutoff"`                       // noise floor (A)
}

// DefaultCalibration returns the calibration of a 50A/1V SCT-013 biased at
// half of a 3.3V rail and sampled by a 12-bit ADC.
func DefaultCalibration() Calibration {
	return Calibration{
		ReferenceVoltage: 3.3,
		FullScale:        FullScaleForBits(DefaultResolution),
		MidRail:          1.65,
		ScaleFactor:      50.0,
		Cutoff:           0.5,
	}
}

// FullScaleForBits returns the maximum raw count of a bits-wide converter.
func FullScaleForBits(bits int) float32 {
	return float32(uint64(1)<<uint(bits) - 1)
}

// Validate reports whether the conversion formula is well defined for c.
func (c Calibration) Validate() error {
	fields := []struct {
		name string
		v    float32
	}{
		{"reference voltage", c.ReferenceVoltage},
		{"full scale", c.FullScale},
		{"mid rail", c.MidRail},
		{"scale factor", c.ScaleFactor},
		{"cutoff", c.Cutoff},
	}
	for _, f := range fields {
		if math32.IsNaN(f.v) || math32.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidCalibration, f.name, f.v)
		}
	}
	if c.ReferenceVoltage <= 0 {
		return fmt.Errorf("%w: reference voltage must be > 0, got %v", ErrInvalidCalibration, c.ReferenceVoltage)
	}
	if c.FullScale <= 0 {
		return fmt.Errorf("%w: full scale must be > 0, got %v", ErrInvalidCalibration, c.FullScale)
	}
	if c.Cutoff < 0 {
		return fmt.Errorf("%w: cutoff must be >= 0, got %v", ErrInvalidCalibration, c.Cutoff)
	}
	return nil
}

// MidRailRaw returns the raw count closest to the mid-rail voltage.
func (c Calibration) MidRailRaw() int {
	return int(math.Round(float64(c.MidRail) * float64(c.FullScale) / float64(c.ReferenceVoltage)))
}

// Volts converts a raw count into the voltage seen at the ADC pin.
func (c Calibration) Volts(raw int) float32 {
	return float32(raw) * c.ReferenceVoltage / c.FullScale
}
