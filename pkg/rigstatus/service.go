package rigstatus

import (
	"time"
)

// Aggregator combines the link, the sensor managers and the blood pressure
// decoder into one status report. Any source may be nil.
type Aggregator struct {
	link        LinkState
	weight      WeightHeightSource
	temperature TemperatureSource
	pulseOx     PulseOxSource
	bp          BPSource
	now         func() time.Time
}

func NewAggregator(link LinkState, weight WeightHeightSource, temperature TemperatureSource, pulseOx PulseOxSource, bp BPSource) *Aggregator {
	return &Aggregator{
		link:        link,
		weight:      weight,
		temperature: temperature,
		pulseOx:     pulseOx,
		bp:          bp,
		now:         time.Now,
	}
}

// Snapshot polls every source. Each component snapshot is taken under that
// component's own lock, so the report is consistent per component only.
func (a *Aggregator) Snapshot() RigStatus {
	status := RigStatus{GeneratedAt: a.now()}

	if a.link != nil {
		status.Connected = a.link.Connected()
		status.Port = a.link.Port()
		status.SessionID = a.link.SessionID()
	}
	if a.weight != nil {
		status.WeightHeight = a.weight.GetStatus()
	}
	if a.temperature != nil {
		status.Temperature = a.temperature.GetStatus()
	}
	if a.pulseOx != nil {
		status.PulseOx = a.pulseOx.GetStatus()
	}
	if a.bp != nil {
		reading := a.bp.Status()
		status.BP = &reading
	}

	// Sensors report ready from their own telemetry, but are only usable
	// while the link is up.
	link := status.Connected
	status.Ready = Readiness{
		Link:        link,
		Weight:      link && status.WeightHeight.Weight.Ready,
		Height:      link && status.WeightHeight.Height.Ready,
		Temperature: link && status.Temperature.Ready,
		PulseOx:     link && status.PulseOx.Ready,
		Finger:      link && status.PulseOx.FingerPresent,
	}
	if status.BP != nil {
		status.Ready.BloodPressure = !status.BP.Error && status.BP.Systolic != ""
	}

	return status
}
