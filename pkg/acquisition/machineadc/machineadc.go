//go:build tinygo && (rp2040 || rp2350)

// Package machineadc binds the on-chip ADC of an RP2040 TinyGo target to
// sct013.Acquisition.
package machineadc

import (
	"errors"
	"machine"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

// machine.ADC.Get scales every conversion to 16 bits.
const nativeBits = 16

var errUnsupportedChannel = errors.New("unsupported ADC channel")

// ADC exposes pins[i] as channel i.
type ADC struct {
	pins     []machine.Pin
	channels map[int]*machine.ADC
	bits     int
}

// New initializes the ADC peripheral and maps channels to pins.
func New(pins ...machine.Pin) *ADC {
	machine.InitADC()
	return &ADC{
		pins:     pins,
		channels: make(map[int]*machine.ADC),
		bits:     sct013.DefaultResolution,
	}
}

func (a *ADC) SetMode(channel int, mode sct013.Mode) error {
	if channel < 0 || channel >= len(a.pins) {
		return errUnsupportedChannel
	}
	pin := a.pins[channel]
	pin.Configure(machine.PinConfig{Mode: machine.PinInput})

	adc := machine.ADC{Pin: pin}
	if err := adc.Configure(a.config()); err != nil {
		return err
	}
	a.channels[channel] = &adc
	return nil
}

func (a *ADC) SetResolution(bits int) error {
	if bits < 1 || bits > nativeBits {
		return errors.New("resolution out of range")
	}
	a.bits = bits
	for _, adc := range a.channels {
		if err := adc.Configure(a.config()); err != nil {
			return err
		}
	}
	return nil
}

func (a *ADC) ReadRaw(channel int) (int, error) {
	adc, ok := a.channels[channel]
	if !ok {
		return 0, errUnsupportedChannel
	}
	return int(adc.Get() >> uint(nativeBits-a.bits)), nil
}

func (a *ADC) config() machine.ADCConfig {
	return machine.ADCConfig{Resolution: uint32(a.bits)}
}
