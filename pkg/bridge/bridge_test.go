package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

type stubADC struct {
	modes map[int]sct013.Mode
	bits  int
	value int
	err   error
}

func (s *stubADC) SetMode(ch int, m sct013.Mode) error {
	if s.err != nil {
		return s.err
	}
	s.modes[ch] = m
	return nil
}

func (s *stubADC) SetResolution(bits int) error {
	s.bits = bits
	return s.err
}

func (s *stubADC) ReadRaw(int) (int, error) { return s.value, s.err }

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
		ok   bool
	}{
		{"I0", Command{OpInput, 0}, true},
		{"A3\r\n", Command{OpAnalog, 3}, true},
		{" B12 ", Command{OpResolution, 12}, true},
		{"R1", Command{OpRead, 1}, true},
		{"", Command{}, false},
		{"R", Command{}, false},
		{"X1", Command{}, false},
		{"Rx", Command{}, false},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrMalformed, "ParseCommand(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseCommand(%q)", tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want.String(), got.String())
	}
}

func TestHandle(t *testing.T) {
	adc := &stubADC{modes: map[int]sct013.Mode{}, value: 2048}

	assert.Equal(t, "OK", Handle(adc, "I2"))
	assert.Equal(t, sct013.ModeInput, adc.modes[2])
	assert.Equal(t, "OK", Handle(adc, "A1"))
	assert.Equal(t, sct013.ModeAnalog, adc.modes[1])
	assert.Equal(t, "OK", Handle(adc, "B10"))
	assert.Equal(t, 10, adc.bits)
	assert.Equal(t, "2048", Handle(adc, "R2"))
	assert.Contains(t, Handle(adc, "Z9"), "ERR malformed command")

	adc.err = errors.New("pin busy")
	assert.Equal(t, "ERR pin busy", Handle(adc, "R0"))
	assert.Equal(t, "ERR pin busy", Handle(adc, "I0"))
}

func TestParseReply(t *testing.T) {
	v, err := ParseReply("OK\r\n")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = ParseReply("4095")
	require.NoError(t, err)
	assert.Equal(t, 4095, v)

	_, err = ParseReply("ERR channel 7 not configured")
	assert.EqualError(t, err, "channel 7 not configured")

	_, err = ParseReply("garbage")
	assert.Error(t, err)
}
