package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/ericogr/sct013-to-mqtt/pkg/output"
	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w      io.Writer
	active *color.Color
	idle   *color.Color
}

func NewConsole() output.Output { return NewConsoleWriter(color.Output) }

// NewConsoleWriter prints to w instead of stdout.
func NewConsoleWriter(w io.Writer) *ConsoleOutput {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{
		w:      w,
		active: color.New(color.FgGreen, color.Bold),
		idle:   color.New(color.Faint),
	}
}

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		current := c.active
		if r.Current == 0 {
			current = c.idle
		}
		_, err := fmt.Fprintf(c.w, "%s channel=%d current=%s rms=%.6f\n",
			r.Timestamp.Format(time.RFC3339), r.Channel, current.Sprintf("%.3f", r.Current), r.RMSVoltage)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
