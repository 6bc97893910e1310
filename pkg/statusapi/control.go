package statusapi

import (
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
)

type measurementControl interface {
	StartMeasurement() error
	StopMeasurement() error
	Reset()
}

type weightHeightControl interface {
	measurementControl
	StartWeight() error
	StartHeight() error
	StopWeight() error
	StopHeight() error
	Tare() error
	AutoTare() error
}

type bpControl interface {
	Reset()
}

// Controls routes operator actions to the sensor managers. Nil members
// reject every action for that sensor.
type Controls struct {
	WeightHeight weightHeightControl
	Temperature  measurementControl
	PulseOx      measurementControl
	BP           bpControl
}

// Control runs action on sensor. Unknown sensors and actions are
// ErrInvalidArgument; command failures are returned as is.
func (c Controls) Control(sensor, action string) error {
	switch sensor {
	case "weight", "height", "weight_height":
		if c.WeightHeight != nil {
			return c.weightHeight(sensor, action)
		}
	case "temperature":
		if c.Temperature != nil {
			return measurement(c.Temperature, sensor, action)
		}
	case "pulse_ox":
		if c.PulseOx != nil {
			return measurement(c.PulseOx, sensor, action)
		}
	case "bp":
		if c.BP != nil && action == "reset" {
			c.BP.Reset()
			return nil
		}
		if c.BP != nil {
			return invalidAction(sensor, action)
		}
	}
	return errors.New().WithData(errors.ErrInvalidArgument, "unknown sensor "+sensor)
}

func (c Controls) weightHeight(sensor, action string) error {
	m := c.WeightHeight
	switch sensor + "/" + action {
	case "weight/start":
		return m.StartWeight()
	case "weight/stop":
		return m.StopWeight()
	case "weight/tare":
		return m.Tare()
	case "weight/auto_tare":
		return m.AutoTare()
	case "height/start":
		return m.StartHeight()
	case "height/stop":
		return m.StopHeight()
	case "weight_height/start":
		return m.StartMeasurement()
	case "weight_height/stop":
		return m.StopMeasurement()
	case "weight_height/reset", "weight/reset", "height/reset":
		m.Reset()
		return nil
	}
	return invalidAction(sensor, action)
}

func measurement(m measurementControl, sensor, action string) error {
	switch action {
	case "start":
		return m.StartMeasurement()
	case "stop":
		return m.StopMeasurement()
	case "reset":
		m.Reset()
		return nil
	}
	return invalidAction(sensor, action)
}

func invalidAction(sensor, action string) error {
	return errors.New().WithData(errors.ErrInvalidArgument, "unknown action "+action+" for "+sensor)
}
