// Package output defines where current readings are sent.
package output

import "github.com/ericogr/sct013-to-mqtt/pkg/sensor"

// Output receives every reading cycle that is due for it. Publish gets one
// Reading per enabled channel, in channel configuration order.
type Output interface {
	Publish([]sensor.Reading) error
	Close() error
}
