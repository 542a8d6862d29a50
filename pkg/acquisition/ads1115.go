// Package acquisition provides the converters a sct013.Sensor samples through.
package acquisition

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// ADS1115 single-ended conversions use 15 bits (0..32767).
	ads1115NativeBits = 15
	ads1115Channels   = 4
)

// DefaultADS1115Address is the address with ADDR tied to GND.
const DefaultADS1115Address = 0x48

// ADS1115 samples single-ended inputs of a TI ADS1115 over I2C.
type ADS1115 struct {
	dev        *i2c.Dev
	bus        i2c.BusCloser
	sampleRate int
	bits       int
	enabled    [ads1115Channels]bool
	mu         sync.Mutex

	// sleep waits for a conversion to finish; replaced in tests.
	sleep func(time.Duration)
}

// OpenADS1115 initializes periph, opens busName and returns a converter at addr.
func OpenADS1115(busName string, addr uint16, sampleRate int) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	a := NewADS1115(bus, addr, sampleRate)
	a.bus = bus
	return a, nil
}

// NewADS1115 returns a converter on an already opened bus. The bus is not
// closed by Close.
func NewADS1115(bus i2c.Bus, addr uint16, sampleRate int) *ADS1115 {
	return &ADS1115{
		dev:        &i2c.Dev{Addr: addr, Bus: bus},
		sampleRate: sampleRate,
		bits:       ads1115NativeBits,
		sleep:      time.Sleep,
	}
}

// SetMode enables a single-ended input. Both modes select the same mux.
func (a *ADS1115) SetMode(channel int, mode sct013.Mode) error {
	if mode != sct013.ModeInput && mode != sct013.ModeAnalog {
		return fmt.Errorf("unsupported mode %s", mode)
	}
	if _, _, err := configForChannel(channel, a.sampleRate); err != nil {
		return err
	}
	a.mu.Lock()
	a.enabled[channel] = true
	a.mu.Unlock()
	return nil
}

// SetResolution rescales conversions to bits, like analogReadResolution.
func (a *ADS1115) SetResolution(bits int) error {
	if bits < 1 || bits > 16 {
		return fmt.Errorf("resolution %d bits out of range 1..16", bits)
	}
	a.mu.Lock()
	a.bits = bits
	a.mu.Unlock()
	return nil
}

// ReadRaw runs one single-shot conversion on channel.
func (a *ADS1115) ReadRaw(channel int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if channel < 0 || channel >= ads1115Channels || !a.enabled[channel] {
		return 0, fmt.Errorf("channel %d not configured", channel)
	}
	msb, lsb, err := configForChannel(channel, a.sampleRate)
	if err != nil {
		return 0, err
	}
	// write config
	if err := a.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("write config: %w", err)
	}
	a.sleep(conversionDelay(a.sampleRate))
	readBuf := make([]byte, 2)
	if err := a.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("read conv: %w", err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	return rescale(raw, a.bits), nil
}

// Close releases the bus when it was opened by OpenADS1115.
func (a *ADS1115) Close() error {
	if a.bus != nil {
		return a.bus.Close()
	}
	return nil
}

// rescale maps a signed conversion onto [0, 2^bits-1].
func rescale(raw int16, bits int) int {
	if raw < 0 {
		return 0
	}
	v := int(raw)
	if bits < ads1115NativeBits {
		return v >> uint(ads1115NativeBits-bits)
	}
	return v << uint(bits-ads1115NativeBits)
}

func conversionDelay(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	return time.Duration(1000/sampleRate+2) * time.Millisecond
}

func configForChannel(channel int, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	// PGA: ±4.096V
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // start single conversion
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot
	config |= uint16(dr) << 5
	config |= 0x3 // comparator disabled
	return byte(config >> 8), byte(config & 0xFF), nil
}
