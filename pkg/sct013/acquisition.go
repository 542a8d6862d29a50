package sct013

import "fmt"

// Mode selects how an acquisition channel is configured.
type Mode int

const (
	// ModeInput configures the channel as a plain input.
	ModeInput Mode = iota
	// ModeAnalog configures the channel for the analog function explicitly.
	ModeAnalog
)

func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeAnalog:
		return "analog"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Acquisition is the converter a Sensor samples through.
//
// ReadRaw blocks until one conversion is available and returns a count in
// [0, 2^bits-1] for the resolution last passed to SetResolution.
type Acquisition interface {
	SetMode(channel int, mode Mode) error
	SetResolution(bits int) error
	ReadRaw(channel int) (int, error)
}
