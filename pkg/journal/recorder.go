package journal

import (
	"context"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

// Run writes every message to the journal under the session current at the
// time it is written. Write errors are logged and recording continues.
func (j *Journal) Run(ctx context.Context, session SessionSource, messages <-chan telemetry.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := j.RecordLine(session.SessionID(), msg); err != nil {
				logger.Warn().Err(err).Str("line", msg.Raw).Msg("Failed to journal telemetry line")
			}
		}
	}
}

// MeasurementObserver returns a sensors.Observer that journals finalized
// measurements.
func (j *Journal) MeasurementObserver(session SessionSource) sensors.Observer {
	return func(m sensors.Measurement) {
		if err := j.RecordMeasurement(session.SessionID(), m); err != nil {
			logger.Warn().Err(err).Str("metric", m.Metric).Msg("Failed to journal measurement")
		}
	}
}

// BPObserver returns a callback for bpdecoder.Decoder.OnChange.
func (j *Journal) BPObserver(session SessionSource) func(bpdecoder.Reading) {
	return func(r bpdecoder.Reading) {
		if err := j.RecordBP(session.SessionID(), r); err != nil {
			logger.Warn().Err(err).Msg("Failed to journal blood pressure reading")
		}
	}
}

// Replay parses recorded lines in order and hands each to every handler.
// Lines that no longer parse are skipped. It returns how many were replayed.
func Replay(lines []RecordedLine, handlers ...func(telemetry.Message)) int {
	replayed := 0
	for _, line := range lines {
		msg, err := telemetry.Parse(line.Raw, time.UnixMilli(line.ReceivedAt))
		if err != nil {
			logger.Debug().Int64("id", line.ID).Str("line", line.Raw).Msg("Skipping unparsable journal line")
			continue
		}
		for _, handle := range handlers {
			handle(msg)
		}
		replayed++
	}
	return replayed
}
