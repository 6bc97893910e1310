package sensors

import (
	"time"
)

// State is the lifecycle position of one sensor or sub-measurement.
type State int

const (
	StateIdle State = iota
	StateReady
	StateActive
	StateComplete
)

var allStates = []State{StateIdle, StateReady, StateActive, StateComplete}

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Trigger is what a telemetry message means to a lifecycle.
type Trigger int

const (
	TriggerPoweredUp Trigger = iota
	TriggerMeasurementStarted
	TriggerLiveSample
	TriggerMeasurementComplete
	TriggerResult
	TriggerPoweredDown
)

func (t Trigger) String() string {
	switch t {
	case TriggerPoweredUp:
		return "powered_up"
	case TriggerMeasurementStarted:
		return "measurement_started"
	case TriggerLiveSample:
		return "live_sample"
	case TriggerMeasurementComplete:
		return "measurement_complete"
	case TriggerResult:
		return "result"
	case TriggerPoweredDown:
		return "powered_down"
	default:
		return "unknown"
	}
}

// Commander sends one-way commands to the rig. *serial_link.Link satisfies it.
type Commander interface {
	SendCommand(cmd string) error
}

// LiveReading is the latest in-progress sample. It is replaced, never queued.
type LiveReading struct {
	Value     float64   `json:"value"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reading pairs the live sample with the finalized value, if any.
type Reading struct {
	Live  *LiveReading `json:"live"`
	Final *float64     `json:"final"`
}

// LifecycleStatus is the externally visible part of a lifecycle.
type LifecycleStatus struct {
	State     State     `json:"state"`
	Ready     bool      `json:"ready"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MeasurementStatus is a snapshot of a single-metric lifecycle.
type MeasurementStatus struct {
	LifecycleStatus
	Reading
}

type WeightHeightStatus struct {
	Weight            MeasurementStatus `json:"weight"`
	Height            MeasurementStatus `json:"height"`
	AutoTareCompleted bool              `json:"auto_tare_completed"`
}

type TemperatureStatus struct {
	MeasurementStatus
}

type PulseOxStatus struct {
	LifecycleStatus
	FingerPresent   bool    `json:"finger_present"`
	IRValue         int64   `json:"ir_value"`
	Quality         string  `json:"quality"`
	HeartRate       Reading `json:"heart_rate"`
	SpO2            Reading `json:"spo2"`
	RespiratoryRate Reading `json:"respiratory_rate"`
	PerfusionIndex  Reading `json:"perfusion_index"`
}

// Measurement is emitted once per finalized value.
type Measurement struct {
	Sensor string    `json:"sensor"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	Unit   string    `json:"unit"`
	At     time.Time `json:"at"`
}

// Observer receives finalized measurements. It is called outside manager
// locks, on the goroutine that handled the message.
type Observer func(Measurement)

const liveStatusMeasuring = "measuring"

const (
	SensorWeightHeight = "weight_height"
	SensorTemperature  = "temperature"
	SensorPulseOx      = "pulse_ox"
)

const (
	MetricWeight          = "weight"
	MetricHeight          = "height"
	MetricTemperature     = "temperature"
	MetricHeartRate       = "heart_rate"
	MetricSpO2            = "spo2"
	MetricRespiratoryRate = "respiratory_rate"
	MetricPerfusionIndex  = "perfusion_index"
)
