package acquisition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

func TestSimulatorSineThroughSensor(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.PeakVoltage = 0.5
	cfg.SamplesPerCycle = 400
	sim := NewSimulator(cfg)

	s := sct013.NewSensor(0, sim)
	require.NoError(t, s.Initialize())

	got, err := s.EstimateCurrent(4 * cfg.SamplesPerCycle)
	require.NoError(t, err)
	assert.InDelta(t, 0.5/math.Sqrt2*50, got, 0.05)
}

func TestSimulatorPerChannelPeak(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.PeakVoltages = map[int]float64{1: 0}
	sim := NewSimulator(cfg)

	quiet := sct013.NewSensor(1, sim)
	require.NoError(t, quiet.Initialize())
	got, err := quiet.EstimateCurrent(cfg.SamplesPerCycle)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	loud := sct013.NewSensor(0, sim)
	require.NoError(t, loud.Initialize())
	got, err = loud.EstimateCurrent(cfg.SamplesPerCycle)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/math.Sqrt2*50, got, 0.1)
}

func TestSimulatorClampsAndNoise(t *testing.T) {
	cfg := DefaultSimulatorConfig()
	cfg.PeakVoltage = 5 // clips at both rails
	cfg.Noise = 0.01
	sim := NewSimulator(cfg)
	require.NoError(t, sim.SetMode(0, sct013.ModeInput))
	require.NoError(t, sim.SetResolution(10))

	var sawLow, sawHigh bool
	for i := 0; i < cfg.SamplesPerCycle; i++ {
		v, err := sim.ReadRaw(0)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0)
		require.LessOrEqual(t, v, 1023)
		sawLow = sawLow || v == 0
		sawHigh = sawHigh || v == 1023
	}
	assert.True(t, sawLow)
	assert.True(t, sawHigh)
}

func TestSimulatorErrors(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{})
	_, err := sim.ReadRaw(0)
	assert.Error(t, err)
	assert.Error(t, sim.SetMode(-1, sct013.ModeInput))
	assert.Error(t, sim.SetResolution(0))
	assert.NoError(t, sim.Close())
}
