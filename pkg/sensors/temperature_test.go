package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemperatureCommands(t *testing.T) {
	link := &fakeCommander{}
	m := NewTemperatureManager(link)

	require.NoError(t, m.StartMeasurement())
	m.HandleMessage(line(t, "STATUS:TEMPERATURE_POWERED_UP"))
	require.NoError(t, m.StartMeasurement())
	require.NoError(t, m.StopMeasurement())

	assert.Equal(t, []string{
		CmdPowerUpTemperature,
		CmdStartTemperature,
		CmdStartTemperature,
		CmdPowerDownTemperature,
	}, link.sent())
}

func TestTemperatureLabels(t *testing.T) {
	for _, raw := range []string{
		"DEBUG:Temperature reading: 36.6",
		"DEBUG:temp reading: 36.6",
		"DEBUG:Object temp reading: 36.6",
	} {
		t.Run(raw, func(t *testing.T) {
			m := NewTemperatureManager(&fakeCommander{})
			m.HandleMessage(line(t, "STATUS:TEMPERATURE_MEASUREMENT_STARTED"))
			m.HandleMessage(line(t, raw))

			status := m.GetStatus()
			require.NotNil(t, status.Live)
			assert.InDelta(t, 36.6, status.Live.Value, 1e-9)
		})
	}
}

func TestTemperatureResultTags(t *testing.T) {
	for _, raw := range []string{"RESULT:TEMPERATURE:37.1", "RESULT:TEMP:37.1"} {
		t.Run(raw, func(t *testing.T) {
			rec := &recorder{}
			m := NewTemperatureManager(&fakeCommander{})
			m.SetObserver(rec.observe)

			m.HandleMessage(line(t, raw))

			status := m.GetStatus()
			assert.Equal(t, StateComplete, status.State)
			require.NotNil(t, status.Final)
			assert.InDelta(t, 37.1, *status.Final, 1e-9)
			require.Len(t, rec.all(), 1)
			assert.Equal(t, "C", rec.all()[0].Unit)
		})
	}
}

func TestTemperatureRebootMidMeasurement(t *testing.T) {
	m := NewTemperatureManager(&fakeCommander{})
	m.HandleMessage(line(t, "STATUS:TEMPERATURE_MEASUREMENT_STARTED"))
	m.HandleMessage(line(t, "DEBUG:Temperature reading: 36.2"))

	m.HandleMessage(line(t, "STATUS:TEMPERATURE_POWERED_UP"))

	status := m.GetStatus()
	assert.Equal(t, StateReady, status.State)
	assert.Nil(t, status.Live)
}

func TestTemperatureResetSendsNothing(t *testing.T) {
	link := &fakeCommander{}
	m := NewTemperatureManager(link)
	m.HandleMessage(line(t, "RESULT:TEMP:36.9"))

	m.Reset()

	status := m.GetStatus()
	assert.Equal(t, StateIdle, status.State)
	assert.Nil(t, status.Final)
	assert.Nil(t, status.Live)
	assert.Empty(t, link.sent())
}
