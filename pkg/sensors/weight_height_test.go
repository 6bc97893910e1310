package sensors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartWeightPowersUpWhenIdle(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)

	require.NoError(t, m.StartWeight())
	assert.Equal(t, []string{CmdPowerUpWeight, CmdStartWeight}, link.sent())
}

func TestStartWeightSkipsPowerUpWhenReady(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)
	m.HandleMessage(line(t, "STATUS:WEIGHT_POWERED_UP"))

	require.NoError(t, m.StartWeight())
	assert.Equal(t, []string{CmdStartWeight}, link.sent())
}

func TestAutoTareSuppressesPowerUp(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)

	require.NoError(t, m.AutoTare())
	m.HandleMessage(line(t, "STATUS:AUTO_TARE_COMPLETE"))
	assert.True(t, m.GetStatus().AutoTareCompleted)

	require.NoError(t, m.StartWeight())
	assert.Equal(t, []string{CmdAutoTare, CmdStartWeight}, link.sent())

	// Powering down the load cell undoes the auto-tare
	m.HandleMessage(line(t, "STATUS:WEIGHT_POWERED_DOWN"))
	assert.False(t, m.GetStatus().AutoTareCompleted)
}

func TestWeightMeasurementCycle(t *testing.T) {
	rec := &recorder{}
	m := NewWeightHeightManager(&fakeCommander{})
	m.SetObserver(rec.observe)

	m.HandleMessage(line(t, "STATUS:WEIGHT_POWERED_UP"))
	assert.Equal(t, StateReady, m.GetStatus().Weight.State)

	m.HandleMessage(line(t, "STATUS:WEIGHT_MEASUREMENT_STARTED"))
	m.HandleMessage(line(t, "DEBUG:Weight reading: 71.9"))
	m.HandleMessage(line(t, "DEBUG:Weight reading: 72.4"))

	status := m.GetStatus().Weight
	assert.Equal(t, StateActive, status.State)
	require.NotNil(t, status.Live)
	assert.InDelta(t, 72.4, status.Live.Value, 1e-9)
	assert.Equal(t, "measuring", status.Live.Status)
	assert.Nil(t, status.Final)

	m.HandleMessage(line(t, "RESULT:WEIGHT:72.5"))
	status = m.GetStatus().Weight
	assert.Equal(t, StateComplete, status.State)
	require.NotNil(t, status.Final)
	assert.InDelta(t, 72.5, *status.Final, 1e-9)

	m.HandleMessage(line(t, "STATUS:WEIGHT_MEASUREMENT_COMPLETE"))
	status = m.GetStatus().Weight
	assert.InDelta(t, 72.5, *status.Final, 1e-9)

	measurements := rec.all()
	require.Len(t, measurements, 1)
	assert.Equal(t, Measurement{
		Sensor: SensorWeightHeight,
		Metric: MetricWeight,
		Value:  72.5,
		Unit:   "kg",
		At:     testClock,
	}, measurements[0])
}

func TestCompleteWithoutResultUsesLastLive(t *testing.T) {
	rec := &recorder{}
	m := NewWeightHeightManager(&fakeCommander{})
	m.SetObserver(rec.observe)

	m.HandleMessage(line(t, "STATUS:HEIGHT_MEASUREMENT_STARTED"))
	m.HandleMessage(line(t, "DEBUG:Height reading: 181.0"))
	m.HandleMessage(line(t, "STATUS:HEIGHT_MEASUREMENT_COMPLETE"))

	status := m.GetStatus().Height
	assert.Equal(t, StateComplete, status.State)
	require.NotNil(t, status.Final)
	assert.InDelta(t, 181.0, *status.Final, 1e-9)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, MetricHeight, rec.all()[0].Metric)
}

func TestLiveSampleOutsideActiveIsIgnored(t *testing.T) {
	m := NewWeightHeightManager(&fakeCommander{})

	m.HandleMessage(line(t, "DEBUG:Weight reading: 70.0"))
	status := m.GetStatus().Weight
	assert.Equal(t, StateIdle, status.State)
	assert.Nil(t, status.Live)
}

func TestWeightAndHeightAreIndependent(t *testing.T) {
	m := NewWeightHeightManager(&fakeCommander{})

	m.HandleMessage(line(t, "STATUS:WEIGHT_MEASUREMENT_STARTED"))
	m.HandleMessage(line(t, "STATUS:HEIGHT_POWERED_UP"))

	status := m.GetStatus()
	assert.Equal(t, StateActive, status.Weight.State)
	assert.Equal(t, StateReady, status.Height.State)
}

func TestStopWeightIsOptimistic(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)
	m.HandleMessage(line(t, "STATUS:WEIGHT_MEASUREMENT_STARTED"))
	m.HandleMessage(line(t, "DEBUG:Weight reading: 70.0"))

	require.NoError(t, m.StopWeight())
	status := m.GetStatus().Weight
	assert.Equal(t, StateIdle, status.State)
	assert.Nil(t, status.Live)
	assert.Equal(t, []string{CmdPowerDownWeight}, link.sent())
}

func TestStopMeasurementStopsBoth(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)

	require.NoError(t, m.StopMeasurement())
	assert.Equal(t, []string{CmdPowerDownWeight, CmdPowerDownHeight}, link.sent())
}

func TestWeightHeightResetSendsNothing(t *testing.T) {
	link := &fakeCommander{}
	m := NewWeightHeightManager(link)
	m.HandleMessage(line(t, "RESULT:WEIGHT:70.2"))
	m.HandleMessage(line(t, "RESULT:HEIGHT:175.0"))

	m.Reset()

	status := m.GetStatus()
	assert.Equal(t, StateIdle, status.Weight.State)
	assert.Nil(t, status.Weight.Final)
	assert.Nil(t, status.Height.Final)
	assert.Empty(t, link.sent())
}

func TestStartWeightReturnsWriteFailure(t *testing.T) {
	link := &fakeCommander{err: io.ErrClosedPipe}
	m := NewWeightHeightManager(link)

	assert.ErrorIs(t, m.StartWeight(), io.ErrClosedPipe)
}

func TestStartClearsPreviousValues(t *testing.T) {
	m := NewWeightHeightManager(&fakeCommander{})
	m.HandleMessage(line(t, "RESULT:WEIGHT:70.2"))

	require.NoError(t, m.StartWeight())
	assert.Nil(t, m.GetStatus().Weight.Final)
}
