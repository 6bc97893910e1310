package sensors

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

const (
	CmdPowerUpTemperature   = "POWER_UP_TEMPERATURE"
	CmdStartTemperature     = "START_TEMPERATURE"
	CmdPowerDownTemperature = "POWER_DOWN_TEMPERATURE"
)

var (
	temperatureSubjects = map[string]bool{"TEMPERATURE": true, "TEMP": true}
	temperatureLabels   = map[string]bool{"temperature": true, "temp": true, "object temp": true}
)

// TemperatureManager drives the infrared body thermometer.
type TemperatureManager struct {
	link Commander

	mu       sync.Mutex
	reading  *measurement
	observer Observer
}

func NewTemperatureManager(link Commander) *TemperatureManager {
	return &TemperatureManager{
		link:    link,
		reading: newMeasurement(SensorTemperature, MetricTemperature, "C"),
	}
}

func (m *TemperatureManager) SetObserver(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

func (m *TemperatureManager) StartMeasurement() error {
	m.mu.Lock()
	powerUp := m.reading.cycle.state == StateIdle
	m.reading.begin()
	m.mu.Unlock()

	if powerUp {
		if err := m.link.SendCommand(CmdPowerUpTemperature); err != nil {
			return err
		}
	}
	return m.link.SendCommand(CmdStartTemperature)
}

func (m *TemperatureManager) StopMeasurement() error {
	m.mu.Lock()
	m.reading.stop(time.Now())
	m.mu.Unlock()

	return m.link.SendCommand(CmdPowerDownTemperature)
}

// Reset clears the reading locally. No command is sent.
func (m *TemperatureManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading.reset(time.Now())
}

func (m *TemperatureManager) GetStatus() TemperatureStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TemperatureStatus{MeasurementStatus: m.reading.status()}
}

func (m *TemperatureManager) Run(ctx context.Context, messages <-chan telemetry.Message) {
	run(ctx, SensorTemperature, messages, m.HandleMessage)
}

func (m *TemperatureManager) HandleMessage(msg telemetry.Message) {
	m.mu.Lock()
	finalized := m.handleLocked(msg)
	observer := m.observer
	m.mu.Unlock()

	notify(observer, finalized)
}

func (m *TemperatureManager) handleLocked(msg telemetry.Message) []Measurement {
	at := messageTime(msg)

	switch msg.Kind {
	case telemetry.KindStatus:
		if !temperatureSubjects[msg.Status.Subject] {
			return nil
		}
		trigger, ok := eventTrigger(msg.Status.Event)
		if !ok {
			logger.Debug().Str("status", msg.Status.Name).Msg("Unhandled temperature status")
			return nil
		}
		return collect(nil, m.reading.apply(trigger, 0, at))

	case telemetry.KindDebug:
		if !temperatureLabels[strings.ToLower(msg.Debug.Label)] {
			return nil
		}
		return collect(nil, m.reading.apply(TriggerLiveSample, msg.Debug.Value, at))

	case telemetry.KindResult:
		if !temperatureSubjects[msg.Result.Tag] {
			return nil
		}
		return collect(nil, m.reading.apply(TriggerResult, msg.Result.Value, at))
	}

	return nil
}
