package telemetry

import "time"

// Kind classifies a telemetry line by its tag prefix.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatus
	KindDebug
	KindDebugText
	KindResult
	KindLiveBlock
	KindIRValue
	KindPresence
)

func (k Kind) String() string {
	switch k {
	case KindStatus:
		return "status"
	case KindDebug:
		return "debug"
	case KindDebugText:
		return "debug_text"
	case KindResult:
		return "result"
	case KindLiveBlock:
		return "live_block"
	case KindIRValue:
		return "ir_value"
	case KindPresence:
		return "presence"
	default:
		return "unknown"
	}
}

// Event is the lifecycle event carried by a STATUS line.
type Event int

const (
	EventOther Event = iota
	EventPoweredUp
	EventMeasurementStarted
	EventMeasurementComplete
	EventPoweredDown
)

func (e Event) String() string {
	switch e {
	case EventPoweredUp:
		return "powered_up"
	case EventMeasurementStarted:
		return "measurement_started"
	case EventMeasurementComplete:
		return "measurement_complete"
	case EventPoweredDown:
		return "powered_down"
	default:
		return "other"
	}
}

// Status is a STATUS:<NAME> line. Subject is the part of NAME before a known
// lifecycle suffix, e.g. WEIGHT for WEIGHT_POWERED_UP.
type Status struct {
	Name    string
	Subject string
	Event   Event
}

// Debug is a DEBUG:<label> reading: <value> sample.
type Debug struct {
	Label string
	Value float64
}

// Result is a RESULT:<TAG>:<value> line.
type Result struct {
	Tag   string
	Value float64
}

// LiveBlock is a composite MAX30102_LIVE_DATA line. Numeric keys are parsed
// together; Text holds the non-numeric keys.
type LiveBlock struct {
	Values map[string]float64
	Text   map[string]string
}

// Message is one parsed telemetry line. Exactly one of the payload fields
// is set, matching Kind. Messages are never mutated after parsing.
type Message struct {
	Raw        string
	ReceivedAt time.Time
	Kind       Kind

	Status    *Status
	Debug     *Debug
	Result    *Result
	LiveBlock *LiveBlock
	IRValue   int64
	// FingerPresent is only meaningful for KindPresence
	FingerPresent bool
}
