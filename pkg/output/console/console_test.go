package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/ericogr/sct013-to-mqtt/pkg/sensor"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	color.NoColor = true
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	readings := []sensor.Reading{
		{Channel: 0, Current: 12.3456, RMSVoltage: 0.246912, Timestamp: ts},
		{Channel: 1, Current: 0, RMSVoltage: 0.000403, Timestamp: ts},
	}

	out := captureStdout(func() {
		c := NewConsoleWriter(os.Stdout)
		assert.NoError(t, c.Publish(readings))
	})
	want := "2025-09-19T14:41:54Z channel=0 current=12.346 rms=0.246912\n" +
		"2025-09-19T14:41:54Z channel=1 current=0.000 rms=0.000403\n"
	assert.Equal(t, want, out)
}

func TestConsoleColors(t *testing.T) {
	color.NoColor = false
	defer func() { color.NoColor = true }()

	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	assert.NoError(t, c.Publish([]sensor.Reading{{Channel: 0, Current: 1, Timestamp: ts}}))
	assert.Contains(t, buf.String(), "\x1b[")
	assert.NoError(t, c.Close())
}
