package rigstatus

import (
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
)

// LinkState is the read side of the serial link.
type LinkState interface {
	Connected() bool
	Port() string
	SessionID() string
}

type WeightHeightSource interface {
	GetStatus() sensors.WeightHeightStatus
}

type TemperatureSource interface {
	GetStatus() sensors.TemperatureStatus
}

type PulseOxSource interface {
	GetStatus() sensors.PulseOxStatus
}

type BPSource interface {
	Status() bpdecoder.Reading
}

// Readiness summarises which parts of the rig can take a measurement.
type Readiness struct {
	Link         bool `json:"link"`
	Weight       bool `json:"weight"`
	Height       bool `json:"height"`
	Temperature  bool `json:"temperature"`
	PulseOx      bool `json:"pulse_ox"`
	Finger       bool `json:"finger"`
	BloodPressure bool `json:"blood_pressure"`
}

// RigStatus is one consistent-per-component view of the whole rig.
type RigStatus struct {
	Connected    bool                       `json:"connected"`
	Port         string                     `json:"port"`
	SessionID    string                     `json:"session_id"`
	Ready        Readiness                  `json:"ready"`
	WeightHeight sensors.WeightHeightStatus `json:"weight_height"`
	Temperature  sensors.TemperatureStatus  `json:"temperature"`
	PulseOx      sensors.PulseOxStatus      `json:"pulse_ox"`
	BP           *bpdecoder.Reading         `json:"blood_pressure"`
	GeneratedAt  time.Time                  `json:"generated_at"`
}
