package journal

type Session struct {
	ID        string `db:"id" json:"id"`
	Port      string `db:"port" json:"port"`
	StartedAt int64  `db:"started_at" json:"started_at"`
	// Zero while the session is open
	EndedAt int64 `db:"ended_at" json:"ended_at"`
}

type RecordedLine struct {
	ID         int64  `db:"id" json:"id"`
	SessionID  string `db:"session_id" json:"session_id"`
	ReceivedAt int64  `db:"received_at" json:"received_at"`
	Kind       string `db:"kind" json:"kind"`
	Raw        string `db:"raw" json:"raw"`
}

type RecordedMeasurement struct {
	SessionID  string  `db:"session_id" json:"session_id"`
	Sensor     string  `db:"sensor" json:"sensor"`
	Metric     string  `db:"metric" json:"metric"`
	Value      float64 `db:"value" json:"value"`
	Unit       string  `db:"unit" json:"unit"`
	MeasuredAt int64   `db:"measured_at" json:"measured_at"`
}

// MetricSummary aggregates every finalized value of one metric in a session.
type MetricSummary struct {
	Sensor      string  `db:"sensor" json:"sensor"`
	Metric      string  `db:"metric" json:"metric"`
	Unit        string  `db:"unit" json:"unit"`
	Average     float64 `db:"avg_value" json:"average"`
	Min         float64 `db:"min_value" json:"min"`
	Max         float64 `db:"max_value" json:"max"`
	SampleCount uint32  `db:"count" json:"sample_count"`
}

// SessionSource reports which connection session is current.
// *serial_link.Link satisfies it.
type SessionSource interface {
	SessionID() string
}
