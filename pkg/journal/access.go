package journal

import (
	"database/sql"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

// Sessions without a serial connection, such as blood pressure readings
// taken while the link is down.
const DetachedSession = "detached"

func (j *Journal) StartSession(id, port string, at time.Time) error {
	_, err := j.db.Exec(
		"INSERT INTO sessions (id, port, started_at) VALUES (?, ?, ?)",
		id,
		port,
		at.UnixMilli(),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrJournalWrite, err).WithData(id)
	}
	return nil
}

func (j *Journal) EndSession(id string, at time.Time) error {
	result, err := j.db.Exec(
		"UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL",
		at.UnixMilli(),
		id,
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrJournalWrite, err).WithData(id)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errFactory.WithData(errors.ErrSessionMissing, id)
	}
	return nil
}

func (j *Journal) RecordLine(sessionID string, msg telemetry.Message) error {
	_, err := j.db.Exec(
		"INSERT INTO telemetry_lines (session_id, received_at, kind, raw) VALUES (?, ?, ?, ?)",
		sessionOrDetached(sessionID),
		msg.ReceivedAt.UnixMilli(),
		msg.Kind.String(),
		msg.Raw,
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrJournalWrite, err)
	}
	return nil
}

func (j *Journal) RecordMeasurement(sessionID string, m sensors.Measurement) error {
	_, err := j.db.Exec(
		"INSERT INTO measurements (session_id, sensor, metric, value, unit, measured_at) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		sessionOrDetached(sessionID),
		m.Sensor,
		m.Metric,
		m.Value,
		m.Unit,
		m.At.UnixMilli(),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrJournalWrite, err)
	}
	return nil
}

func (j *Journal) RecordBP(sessionID string, r bpdecoder.Reading) error {
	_, err := j.db.Exec(
		"INSERT INTO bp_readings (session_id, systolic, diastolic, trend, is_error, recorded_at) "+
			"VALUES (?, ?, ?, ?, ?, ?)",
		sessionOrDetached(sessionID),
		r.Systolic,
		r.Diastolic,
		r.Trend.String(),
		r.Error,
		r.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrJournalWrite, err)
	}
	return nil
}

// Sessions lists recorded sessions, newest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query("SELECT id, port, started_at, ended_at FROM sessions ORDER BY started_at DESC, rowid DESC")
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var endedAt sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Port, &s.StartedAt, &endedAt); err != nil {
			return nil, errFactory.Wrap(errors.ErrJournalRead, err)
		}
		s.EndedAt = endedAt.Int64
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	return sessions, nil
}

// LatestSession returns the most recently started session.
func (j *Journal) LatestSession() (Session, error) {
	sessions, err := j.Sessions()
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, errFactory.WithMessage(errors.ErrSessionMissing, "journal has no sessions")
	}
	return sessions[0], nil
}

// Lines returns a session's telemetry in the order it was received.
func (j *Journal) Lines(sessionID string) ([]RecordedLine, error) {
	rows, err := j.db.Query(
		"SELECT id, session_id, received_at, kind, raw FROM telemetry_lines WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	defer rows.Close()

	var lines []RecordedLine
	for rows.Next() {
		var l RecordedLine
		if err := rows.Scan(&l.ID, &l.SessionID, &l.ReceivedAt, &l.Kind, &l.Raw); err != nil {
			return nil, errFactory.Wrap(errors.ErrJournalRead, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	return lines, nil
}

func (j *Journal) Measurements(sessionID string) ([]RecordedMeasurement, error) {
	rows, err := j.db.Query(
		"SELECT session_id, sensor, metric, value, unit, measured_at FROM measurements WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	defer rows.Close()

	var out []RecordedMeasurement
	for rows.Next() {
		var m RecordedMeasurement
		if err := rows.Scan(&m.SessionID, &m.Sensor, &m.Metric, &m.Value, &m.Unit, &m.MeasuredAt); err != nil {
			return nil, errFactory.Wrap(errors.ErrJournalRead, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	return out, nil
}

// SummarizeSession averages each metric's finalized values in a session.
func (j *Journal) SummarizeSession(sessionID string) ([]MetricSummary, error) {
	query := `
		SELECT
			sensor,
			metric,
			MAX(unit) as unit,
			AVG(value) as avg_value,
			MIN(value) as min_value,
			MAX(value) as max_value,
			COUNT(*) as count
		FROM measurements
		WHERE session_id = ?
		GROUP BY sensor, metric
		ORDER BY sensor, metric
	`

	rows, err := j.db.Query(query, sessionID)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	defer rows.Close()

	var summaries []MetricSummary
	for rows.Next() {
		var s MetricSummary
		if err := rows.Scan(&s.Sensor, &s.Metric, &s.Unit, &s.Average, &s.Min, &s.Max, &s.SampleCount); err != nil {
			return nil, errFactory.Wrap(errors.ErrJournalRead, err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrJournalRead, err)
	}
	return summaries, nil
}

func sessionOrDetached(id string) string {
	if id == "" {
		return DetachedSession
	}
	return id
}
