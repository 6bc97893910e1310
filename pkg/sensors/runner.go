package sensors

import (
	"context"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

// run feeds messages to handle until ctx ends or the channel closes. A panic
// while handling one message is logged and the loop continues.
func run(ctx context.Context, sensor string, messages <-chan telemetry.Message, handle func(telemetry.Message)) {
	logger.Debug().Str("sensor", sensor).Msg("Sensor manager started")
	defer logger.Debug().Str("sensor", sensor).Msg("Sensor manager stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			handleSafely(sensor, msg, handle)
		}
	}
}

func handleSafely(sensor string, msg telemetry.Message, handle func(telemetry.Message)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("sensor", sensor).
				Str("line", msg.Raw).
				Interface("panic", r).
				Msg("Recovered from panic while handling telemetry")
		}
	}()
	handle(msg)
}

func eventTrigger(e telemetry.Event) (Trigger, bool) {
	switch e {
	case telemetry.EventPoweredUp:
		return TriggerPoweredUp, true
	case telemetry.EventMeasurementStarted:
		return TriggerMeasurementStarted, true
	case telemetry.EventMeasurementComplete:
		return TriggerMeasurementComplete, true
	case telemetry.EventPoweredDown:
		return TriggerPoweredDown, true
	}
	return 0, false
}

func messageTime(msg telemetry.Message) time.Time {
	if msg.ReceivedAt.IsZero() {
		return time.Now()
	}
	return msg.ReceivedAt
}

func notify(observer Observer, measurements []Measurement) {
	if observer == nil {
		return
	}
	for _, m := range measurements {
		observer(m)
	}
}

// measurement is a lifecycle with exactly one metric.
type measurement struct {
	sensor string
	metric string
	unit   string
	cycle  *lifecycle
	value  reading
}

func newMeasurement(sensor, metric, unit string) *measurement {
	return &measurement{
		sensor: sensor,
		metric: metric,
		unit:   unit,
		cycle:  newLifecycle(metric, DefaultTransitions()),
	}
}

// apply runs one trigger. It returns the finalized measurement, if any.
func (m *measurement) apply(on Trigger, value float64, at time.Time) *Measurement {
	if !m.cycle.fire(on, at) {
		return nil
	}

	switch on {
	case TriggerPoweredUp, TriggerPoweredDown:
		m.value.live = nil
	case TriggerMeasurementStarted:
		m.value.clear()
	case TriggerLiveSample:
		m.value.setLive(value, at)
	case TriggerMeasurementComplete:
		if final, ok := m.value.finalizeFromLive(); ok {
			return m.finalized(final, at)
		}
	case TriggerResult:
		m.value.setFinal(value)
		return m.finalized(value, at)
	}
	return nil
}

func (m *measurement) finalized(value float64, at time.Time) *Measurement {
	logger.Info().
		Str("sensor", m.sensor).
		Str("metric", m.metric).
		Float64("value", value).
		Msg("Measurement finalized")
	return &Measurement{Sensor: m.sensor, Metric: m.metric, Value: value, Unit: m.unit, At: at}
}

func (m *measurement) begin() {
	m.value.clear()
}

func (m *measurement) stop(at time.Time) {
	m.cycle.force(StateIdle, at)
	m.value.live = nil
}

func (m *measurement) reset(at time.Time) {
	m.cycle.force(StateIdle, at)
	m.value.clear()
}

func (m *measurement) status() MeasurementStatus {
	return MeasurementStatus{
		LifecycleStatus: m.cycle.status(),
		Reading:         m.value.snapshot(),
	}
}

func collect(out []Measurement, m *Measurement) []Measurement {
	if m == nil {
		return out
	}
	return append(out, *m)
}
