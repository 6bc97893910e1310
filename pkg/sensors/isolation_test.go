package sensors

import (
	"context"
	"testing"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	weight *WeightHeightManager
	temp   *TemperatureManager
	pulse  *PulseOxManager
}

func newRig() rig {
	link := &fakeCommander{}
	return rig{
		weight: NewWeightHeightManager(link),
		temp:   NewTemperatureManager(link),
		pulse:  NewPulseOxManager(link),
	}
}

func (r rig) deliver(msg telemetry.Message) {
	r.weight.HandleMessage(msg)
	r.temp.HandleMessage(msg)
	r.pulse.HandleMessage(msg)
}

func TestLinesOnlyAffectTheirOwnSensor(t *testing.T) {
	tests := []struct {
		raw     string
		changed string
	}{
		{"STATUS:WEIGHT_POWERED_UP", SensorWeightHeight},
		{"STATUS:HEIGHT_MEASUREMENT_STARTED", SensorWeightHeight},
		{"RESULT:WEIGHT:70.0", SensorWeightHeight},
		{"STATUS:TEMPERATURE_POWERED_UP", SensorTemperature},
		{"RESULT:TEMP:36.7", SensorTemperature},
		{"STATUS:MAX30102_MEASUREMENT_STARTED", SensorPulseOx},
		{"RESULT:SPO2:98", SensorPulseOx},
		{"FINGER_DETECTED", SensorPulseOx},
		{"MAX30102_IR_VALUE:1200", SensorPulseOx},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := newRig()
			weightBefore := r.weight.GetStatus()
			tempBefore := r.temp.GetStatus()
			pulseBefore := r.pulse.GetStatus()

			r.deliver(line(t, tt.raw))

			assert.Equal(t, tt.changed != SensorWeightHeight, weightBefore == r.weight.GetStatus(), "weight/height")
			assert.Equal(t, tt.changed != SensorTemperature, tempBefore == r.temp.GetStatus(), "temperature")
			assert.Equal(t, tt.changed != SensorPulseOx, assert.ObjectsAreEqual(pulseBefore, r.pulse.GetStatus()), "pulse oximeter")
		})
	}
}

func TestUnknownLinesChangeNothing(t *testing.T) {
	r := newRig()
	weightBefore := r.weight.GetStatus()
	tempBefore := r.temp.GetStatus()
	pulseBefore := r.pulse.GetStatus()

	r.deliver(line(t, "DEBUG:boot complete"))
	r.deliver(line(t, "STATUS:SYSTEM_READY"))
	r.deliver(line(t, "hello"))

	assert.Equal(t, weightBefore, r.weight.GetStatus())
	assert.Equal(t, tempBefore, r.temp.GetStatus())
	assert.Equal(t, pulseBefore, r.pulse.GetStatus())
}

func TestRunConsumesUntilChannelCloses(t *testing.T) {
	m := NewTemperatureManager(&fakeCommander{})
	messages := make(chan telemetry.Message, 4)
	done := make(chan struct{})

	go func() {
		m.Run(context.Background(), messages)
		close(done)
	}()

	messages <- line(t, "STATUS:TEMPERATURE_MEASUREMENT_STARTED")
	messages <- line(t, "RESULT:TEMPERATURE:36.8")
	close(messages)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	require.NotNil(t, m.GetStatus().Final)
}

func TestRunSurvivesPanickingObserver(t *testing.T) {
	m := NewTemperatureManager(&fakeCommander{})
	calls := 0
	m.SetObserver(func(Measurement) {
		calls++
		if calls == 1 {
			panic("observer failed")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages := make(chan telemetry.Message)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, messages)
		close(done)
	}()

	messages <- line(t, "RESULT:TEMPERATURE:36.8")
	messages <- line(t, "RESULT:TEMPERATURE:36.9")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, calls)
	assert.InDelta(t, 36.9, *m.GetStatus().Final, 1e-9)
}
