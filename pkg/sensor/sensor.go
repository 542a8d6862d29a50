package sensor

import "time"

// Reading is the current measured on one channel.
type Reading struct {
	Channel    int       `json:"channel"`
	Name       string    `json:"name"`
	Current    float64   `json:"current"`
	RMSVoltage float64   `json:"rms_voltage"`
	Samples    int       `json:"samples"`
	Suppressed bool      `json:"suppressed"`
	Timestamp  time.Time `json:"timestamp"`
}

type Sensor interface {
	Read() ([]Reading, error)
	Close() error
}
