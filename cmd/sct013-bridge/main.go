//go:build tinygo && (rp2040 || rp2350)

//go:generate tinygo flash -target=pico

// Command sct013-bridge exposes the board ADC to the host over USB serial
// using the bridge line protocol.
package main

import (
	"machine"
	"time"

	"github.com/ericogr/sct013-to-mqtt/pkg/acquisition/machineadc"
	"github.com/ericogr/sct013-to-mqtt/pkg/bridge"
)

var (
	serial = machine.Serial
	adc    *machineadc.ADC

	lineBuffer [32]byte
	linePos    int
	overflow   bool
)

func main() {
	serial.Configure(machine.UARTConfig{BaudRate: 115200})
	// ADC3 samples VSYS/3 on the Pico, so only the header inputs are exposed
	adc = machineadc.New(machine.ADC0, machine.ADC1, machine.ADC2)

	for {
		processSerial()
		time.Sleep(100 * time.Microsecond)
	}
}

func processSerial() {
	for serial.Buffered() > 0 {
		data, err := serial.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if linePos > 0 && !overflow {
				reply := bridge.Handle(adc, string(lineBuffer[:linePos]))
				serial.Write([]byte(reply + "\n"))
			}
			linePos = 0
			overflow = false
			continue
		}

		if linePos < len(lineBuffer) {
			lineBuffer[linePos] = data
			linePos++
		} else {
			// overlong line, drop it
			overflow = true
		}
	}
}
