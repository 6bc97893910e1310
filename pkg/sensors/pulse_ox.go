package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

const (
	CmdPowerUpPulseOx   = "POWER_UP_MAX30102"
	CmdStartPulseOx     = "START_MAX30102"
	CmdPowerDownPulseOx = "POWER_DOWN_MAX30102"
)

const statusSubjectPulseOx = "MAX30102"

type vital struct {
	metric string
	unit   string
}

// Live block keys and result tags, mapped to metrics.
var vitalsByKey = map[string]vital{
	"HR":   {MetricHeartRate, "bpm"},
	"SPO2": {MetricSpO2, "%"},
	"RR":   {MetricRespiratoryRate, "brpm"},
	"PI":   {MetricPerfusionIndex, "%"},
}

var vitalKeys = []string{"HR", "SPO2", "RR", "PI"}

// Cleared as soon as the finger leaves the sensor.
var contactVitals = []string{MetricHeartRate, MetricSpO2, MetricRespiratoryRate}

// PulseOxManager drives the MAX30102 pulse oximeter. One lifecycle covers
// all of its vitals.
type PulseOxManager struct {
	link Commander

	mu            sync.Mutex
	cycle         *lifecycle
	vitals        map[string]*reading
	units         map[string]string
	fingerPresent bool
	irValue       int64
	quality       string
	observer      Observer
}

func NewPulseOxManager(link Commander) *PulseOxManager {
	m := &PulseOxManager{
		link:   link,
		cycle:  newLifecycle(SensorPulseOx, DefaultTransitions()),
		vitals: make(map[string]*reading, len(vitalsByKey)),
		units:  make(map[string]string, len(vitalsByKey)),
	}
	for _, v := range vitalsByKey {
		m.vitals[v.metric] = &reading{}
		m.units[v.metric] = v.unit
	}
	return m
}

func (m *PulseOxManager) SetObserver(observer Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

func (m *PulseOxManager) StartMeasurement() error {
	m.mu.Lock()
	powerUp := m.cycle.state == StateIdle
	m.clearVitals()
	m.mu.Unlock()

	if powerUp {
		if err := m.link.SendCommand(CmdPowerUpPulseOx); err != nil {
			return err
		}
	}
	return m.link.SendCommand(CmdStartPulseOx)
}

func (m *PulseOxManager) StopMeasurement() error {
	m.mu.Lock()
	m.cycle.force(StateIdle, time.Now())
	m.clearLive(nil)
	m.mu.Unlock()

	return m.link.SendCommand(CmdPowerDownPulseOx)
}

// Reset clears every vital locally. No command is sent.
func (m *PulseOxManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycle.force(StateIdle, time.Now())
	m.clearVitals()
	m.quality = ""
	m.irValue = 0
}

func (m *PulseOxManager) GetStatus() PulseOxStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return PulseOxStatus{
		LifecycleStatus: m.cycle.status(),
		FingerPresent:   m.fingerPresent,
		IRValue:         m.irValue,
		Quality:         m.quality,
		HeartRate:       m.vitals[MetricHeartRate].snapshot(),
		SpO2:            m.vitals[MetricSpO2].snapshot(),
		RespiratoryRate: m.vitals[MetricRespiratoryRate].snapshot(),
		PerfusionIndex:  m.vitals[MetricPerfusionIndex].snapshot(),
	}
}

func (m *PulseOxManager) Run(ctx context.Context, messages <-chan telemetry.Message) {
	run(ctx, SensorPulseOx, messages, m.HandleMessage)
}

func (m *PulseOxManager) HandleMessage(msg telemetry.Message) {
	m.mu.Lock()
	finalized := m.handleLocked(msg)
	observer := m.observer
	m.mu.Unlock()

	notify(observer, finalized)
}

func (m *PulseOxManager) handleLocked(msg telemetry.Message) []Measurement {
	at := messageTime(msg)

	switch msg.Kind {
	case telemetry.KindStatus:
		if msg.Status.Subject != statusSubjectPulseOx {
			return nil
		}
		trigger, ok := eventTrigger(msg.Status.Event)
		if !ok {
			logger.Debug().Str("status", msg.Status.Name).Msg("Unhandled pulse oximeter status")
			return nil
		}
		if !m.cycle.fire(trigger, at) {
			return nil
		}
		switch trigger {
		case TriggerPoweredUp, TriggerPoweredDown:
			m.clearLive(nil)
		case TriggerMeasurementStarted:
			m.clearVitals()
		case TriggerMeasurementComplete:
			return m.finalizeFromLive(at)
		}

	case telemetry.KindLiveBlock:
		if !m.cycle.fire(TriggerLiveSample, at) {
			return nil
		}
		for key, value := range msg.LiveBlock.Values {
			if v, ok := vitalsByKey[key]; ok {
				m.vitals[v.metric].setLive(value, at)
			}
		}
		if quality, ok := msg.LiveBlock.Text["QUALITY"]; ok {
			m.quality = quality
		}

	case telemetry.KindIRValue:
		m.irValue = msg.IRValue

	case telemetry.KindPresence:
		if m.fingerPresent != msg.FingerPresent {
			logger.Info().Bool("finger_present", msg.FingerPresent).Msg("Finger presence changed")
		}
		m.fingerPresent = msg.FingerPresent
		if !msg.FingerPresent {
			m.clearLive(contactVitals)
		}

	case telemetry.KindResult:
		v, ok := vitalsByKey[msg.Result.Tag]
		if !ok {
			return nil
		}
		if !m.cycle.fire(TriggerResult, at) {
			return nil
		}
		m.vitals[v.metric].setFinal(msg.Result.Value)
		return []Measurement{m.finalized(v.metric, msg.Result.Value, at)}
	}

	return nil
}

func (m *PulseOxManager) finalizeFromLive(at time.Time) []Measurement {
	var out []Measurement
	for _, key := range vitalKeys {
		v := vitalsByKey[key]
		if value, ok := m.vitals[v.metric].finalizeFromLive(); ok {
			out = append(out, m.finalized(v.metric, value, at))
		}
	}
	return out
}

func (m *PulseOxManager) finalized(metric string, value float64, at time.Time) Measurement {
	logger.Info().
		Str("sensor", SensorPulseOx).
		Str("metric", metric).
		Float64("value", value).
		Msg("Measurement finalized")
	return Measurement{Sensor: SensorPulseOx, Metric: metric, Value: value, Unit: m.units[metric], At: at}
}

// clearLive drops live values for metrics, or for every vital when nil.
func (m *PulseOxManager) clearLive(metrics []string) {
	if metrics == nil {
		for _, r := range m.vitals {
			r.live = nil
		}
		return
	}
	for _, metric := range metrics {
		m.vitals[metric].live = nil
	}
}

func (m *PulseOxManager) clearVitals() {
	for _, r := range m.vitals {
		r.clear()
	}
}
