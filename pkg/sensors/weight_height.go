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
	CmdPowerUpWeight   = "POWER_UP_WEIGHT"
	CmdStartWeight     = "START_WEIGHT"
	CmdPowerDownWeight = "POWER_DOWN_WEIGHT"
	CmdTareWeight      = "TARE_WEIGHT"
	CmdAutoTare        = "AUTO_TARE"
	CmdStartHeight     = "START_HEIGHT"
	CmdPowerDownHeight = "POWER_DOWN_HEIGHT" // assumed, firmware ignores unknown commands
)

const (
	statusSubjectWeight    = "WEIGHT"
	statusSubjectHeight    = "HEIGHT"
	statusAutoTareComplete = "AUTO_TARE_COMPLETE"
	statusTareComplete     = "TARE_COMPLETE"
)

// WeightHeightManager drives the load cell and the height sensor. The two
// sub-measurements have independent lifecycles.
type WeightHeightManager struct {
	link Commander

	mu                sync.Mutex
	weight            *measurement
	height            *measurement
	autoTareCompleted bool
	observer          Observer
}

func NewWeightHeightManager(link Commander) *WeightHeightManager {
	return &WeightHeightManager{
		link:   link,
		weight: newMeasurement(SensorWeightHeight, MetricWeight, "kg"),
		height: newMeasurement(SensorWeightHeight, MetricHeight, "cm"),
	}
}

func (m *WeightHeightManager) SetObserver(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// StartWeight powers the load cell up unless it is already on, then starts
// a weight measurement. Auto-tare leaves the load cell powered.
func (m *WeightHeightManager) StartWeight() error {
	m.mu.Lock()
	powerUp := m.weight.cycle.state == StateIdle && !m.autoTareCompleted
	m.weight.begin()
	m.mu.Unlock()

	if powerUp {
		if err := m.link.SendCommand(CmdPowerUpWeight); err != nil {
			return err
		}
	}
	return m.link.SendCommand(CmdStartWeight)
}

func (m *WeightHeightManager) StartHeight() error {
	m.mu.Lock()
	m.height.begin()
	m.mu.Unlock()

	return m.link.SendCommand(CmdStartHeight)
}

// StartMeasurement starts weight, then height.
func (m *WeightHeightManager) StartMeasurement() error {
	if err := m.StartWeight(); err != nil {
		return err
	}
	return m.StartHeight()
}

func (m *WeightHeightManager) StopWeight() error {
	m.mu.Lock()
	m.weight.stop(time.Now())
	m.mu.Unlock()

	return m.link.SendCommand(CmdPowerDownWeight)
}

func (m *WeightHeightManager) StopHeight() error {
	m.mu.Lock()
	m.height.stop(time.Now())
	m.mu.Unlock()

	return m.link.SendCommand(CmdPowerDownHeight)
}

// StopMeasurement powers both sensors down. Both commands are attempted;
// the first failure is returned.
func (m *WeightHeightManager) StopMeasurement() error {
	weightErr := m.StopWeight()
	heightErr := m.StopHeight()
	if weightErr != nil {
		return weightErr
	}
	return heightErr
}

// AutoTare asks the rig to zero the load cell. Completion is reported by
// AUTO_TARE_COMPLETE.
func (m *WeightHeightManager) AutoTare() error {
	m.mu.Lock()
	m.autoTareCompleted = false
	m.mu.Unlock()

	return m.link.SendCommand(CmdAutoTare)
}

func (m *WeightHeightManager) Tare() error {
	return m.link.SendCommand(CmdTareWeight)
}

// Reset clears both sub-measurements locally. No command is sent.
func (m *WeightHeightManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.weight.reset(now)
	m.height.reset(now)
}

func (m *WeightHeightManager) GetStatus() WeightHeightStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return WeightHeightStatus{
		Weight:            m.weight.status(),
		Height:            m.height.status(),
		AutoTareCompleted: m.autoTareCompleted,
	}
}

func (m *WeightHeightManager) Run(ctx context.Context, messages <-chan telemetry.Message) {
	run(ctx, SensorWeightHeight, messages, m.HandleMessage)
}

// HandleMessage applies one telemetry message. Messages for other sensors
// are ignored.
func (m *WeightHeightManager) HandleMessage(msg telemetry.Message) {
	m.mu.Lock()
	finalized := m.handleLocked(msg)
	observer := m.observer
	m.mu.Unlock()

	notify(observer, finalized)
}

func (m *WeightHeightManager) handleLocked(msg telemetry.Message) []Measurement {
	at := messageTime(msg)
	var out []Measurement

	switch msg.Kind {
	case telemetry.KindStatus:
		switch msg.Status.Name {
		case statusAutoTareComplete:
			m.autoTareCompleted = true
			logger.Info().Msg("Auto-tare complete")
			return nil
		case statusTareComplete:
			logger.Info().Msg("Tare complete")
			return nil
		}

		target := m.subMeasurement(msg.Status.Subject)
		if target == nil {
			return nil
		}
		trigger, ok := eventTrigger(msg.Status.Event)
		if !ok {
			logger.Debug().Str("status", msg.Status.Name).Msg("Unhandled weight/height status")
			return nil
		}
		out = collect(out, target.apply(trigger, 0, at))
		if target == m.weight && trigger == TriggerPoweredDown {
			m.autoTareCompleted = false
		}

	case telemetry.KindDebug:
		var target *measurement
		switch strings.ToLower(msg.Debug.Label) {
		case "weight":
			target = m.weight
		case "height":
			target = m.height
		default:
			return nil
		}
		out = collect(out, target.apply(TriggerLiveSample, msg.Debug.Value, at))

	case telemetry.KindResult:
		target := m.subMeasurement(msg.Result.Tag)
		if target == nil {
			return nil
		}
		out = collect(out, target.apply(TriggerResult, msg.Result.Value, at))
	}

	return out
}

func (m *WeightHeightManager) subMeasurement(subject string) *measurement {
	switch subject {
	case statusSubjectWeight:
		return m.weight
	case statusSubjectHeight:
		return m.height
	}
	return nil
}
