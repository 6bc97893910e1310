package sensors

import (
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/logger"
)

type transitionKey struct {
	from State
	on   Trigger
}

// TransitionTable maps (state, trigger) to the next state. Pairs that are
// missing are invalid and get ignored with a warning.
type TransitionTable map[transitionKey]State

// Allowed reports the next state for on while in from.
func (t TransitionTable) Allowed(from State, on Trigger) (State, bool) {
	next, ok := t[transitionKey{from: from, on: on}]
	return next, ok
}

// DefaultTransitions is the table shared by every rig sensor. A power-up in
// any state lands in Ready, which covers a firmware reboot mid-measurement.
func DefaultTransitions() TransitionTable {
	table := TransitionTable{}
	for _, s := range allStates {
		table[transitionKey{s, TriggerPoweredUp}] = StateReady
		table[transitionKey{s, TriggerMeasurementStarted}] = StateActive
		table[transitionKey{s, TriggerResult}] = StateComplete
		table[transitionKey{s, TriggerPoweredDown}] = StateIdle
	}
	table[transitionKey{StateActive, TriggerLiveSample}] = StateActive
	table[transitionKey{StateActive, TriggerMeasurementComplete}] = StateComplete
	table[transitionKey{StateComplete, TriggerMeasurementComplete}] = StateComplete
	return table
}

// lifecycle is the state machine of one sensor or sub-measurement. Callers
// hold the owning manager's mutex.
type lifecycle struct {
	name      string
	table     TransitionTable
	state     State
	updatedAt time.Time
}

func newLifecycle(name string, table TransitionTable) *lifecycle {
	return &lifecycle{name: name, table: table}
}

func (l *lifecycle) fire(on Trigger, at time.Time) bool {
	next, ok := l.table.Allowed(l.state, on)
	if !ok {
		logger.Warn().
			Str("sensor", l.name).
			Str("state", l.state.String()).
			Str("trigger", on.String()).
			Msg("Ignoring transition not allowed from current state")
		return false
	}

	if next != l.state {
		logger.Debug().
			Str("sensor", l.name).
			Str("from", l.state.String()).
			Str("to", next.String()).
			Msg("Sensor state changed")
	}
	l.state = next
	l.updatedAt = at
	return true
}

func (l *lifecycle) force(state State, at time.Time) {
	l.state = state
	l.updatedAt = at
}

func (l *lifecycle) status() LifecycleStatus {
	return LifecycleStatus{
		State:     l.state,
		Ready:     l.state != StateIdle,
		Active:    l.state == StateActive,
		UpdatedAt: l.updatedAt,
	}
}

// reading holds one metric's live and final values.
type reading struct {
	live  *LiveReading
	final *float64
}

func (r *reading) setLive(value float64, at time.Time) {
	r.live = &LiveReading{Value: value, Status: liveStatusMeasuring, UpdatedAt: at}
}

func (r *reading) setFinal(value float64) {
	r.final = &value
}

// finalizeFromLive promotes the live value when no result arrived.
func (r *reading) finalizeFromLive() (float64, bool) {
	if r.final != nil {
		return 0, false
	}
	if r.live == nil {
		return 0, false
	}
	r.setFinal(r.live.Value)
	return r.live.Value, true
}

func (r *reading) clear() {
	r.live = nil
	r.final = nil
}

func (r *reading) snapshot() Reading {
	var out Reading
	if r.live != nil {
		live := *r.live
		out.Live = &live
	}
	if r.final != nil {
		final := *r.final
		out.Final = &final
	}
	return out
}
