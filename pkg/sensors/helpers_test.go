package sensors

import (
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
	"github.com/stretchr/testify/require"
)

type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (f *fakeCommander) SendCommand(cmd string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeCommander) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

var testClock = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func line(t *testing.T, raw string) telemetry.Message {
	t.Helper()
	msg, err := telemetry.Parse(raw, testClock)
	require.NoError(t, err)
	return msg
}

type recorder struct {
	mu           sync.Mutex
	measurements []Measurement
}

func (r *recorder) observe(m Measurement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.measurements = append(r.measurements, m)
}

func (r *recorder) all() []Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Measurement(nil), r.measurements...)
}
