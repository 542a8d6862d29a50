package sensor

import (
	"github.com/ericogr/sct013-to-mqtt/pkg/config"
	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

type channelSettings struct {
	channel int
	name    string
	cal     sct013.Calibration
}

// buildChannelSettings extracts the enabled channels and their calibration
// from the config, in configuration order. Unset calibration fields follow
// the backend and resolution of cfg.
func buildChannelSettings(cfg config.Config) []channelSettings {
	out := make([]channelSettings, 0, len(cfg.Channels))
	for _, c := range cfg.EnabledChannels() {
		out = append(out, channelSettings{channel: c.Channel, name: c.DisplayName(), cal: cfg.ChannelCalibration(c)})
	}
	return out
}
