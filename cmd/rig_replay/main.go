// rig_replay feeds a journaled session back through the sensor managers and
// prints what they end up reporting.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/journal"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/pathing"
	"github.com/NotCoffee418/vitals_rig/pkg/rigstatus"
	"github.com/NotCoffee418/vitals_rig/pkg/sensors"
	"github.com/spf13/pflag"
)

var errFactory = errors.New()

type report struct {
	Session  journal.Session         `json:"session"`
	Replayed int                     `json:"replayed_lines"`
	Skipped  int                     `json:"skipped_lines"`
	Status   rigstatus.RigStatus     `json:"status"`
	Summary  []journal.MetricSummary `json:"summary,omitempty"`
}

// replayLink stands in for the serial link. Managers fed from the journal
// must never issue commands.
type replayLink struct {
	session journal.Session
}

func (l replayLink) SendCommand(cmd string) error {
	return errFactory.WithMessage(errors.ErrNotConnected, "replay cannot send "+cmd)
}

func (l replayLink) Connected() bool   { return true }
func (l replayLink) Port() string      { return l.session.Port }
func (l replayLink) SessionID() string { return l.session.ID }

func main() {
	journalPath := pflag.StringP("journal", "j", pathing.GetJournalDbPath(), "Path to the journal database")
	sessionID := pflag.StringP("session", "s", "", "Session to replay, latest when empty")
	summary := pflag.Bool("summary", false, "Include per-metric statistics of journaled measurements")
	list := pflag.Bool("list", false, "List journaled sessions and exit")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	logger.Init(*debug, false, false)

	j, err := journal.Open(*journalPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *journalPath).Msg("Failed to open journal")
	}
	defer j.Close()

	if *list {
		sessions, err := j.Sessions()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to list sessions")
		}
		printJSON(sessions)
		return
	}

	session, err := findSession(j, *sessionID)
	if err != nil {
		logger.Fatal().Err(err).Str("session", *sessionID).Msg("Failed to find session")
	}

	lines, err := j.Lines(session.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load journaled lines")
	}

	link := replayLink{session: session}
	weightHeight := sensors.NewWeightHeightManager(link)
	temperature := sensors.NewTemperatureManager(link)
	pulseOx := sensors.NewPulseOxManager(link)

	replayed := journal.Replay(lines, weightHeight.HandleMessage, temperature.HandleMessage, pulseOx.HandleMessage)

	out := report{
		Session:  session,
		Replayed: replayed,
		Skipped:  len(lines) - replayed,
		Status:   rigstatus.NewAggregator(link, weightHeight, temperature, pulseOx, nil).Snapshot(),
	}
	if *summary {
		out.Summary, err = j.SummarizeSession(session.ID)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to summarize session")
		}
	}
	printJSON(out)
}

func findSession(j *journal.Journal, id string) (journal.Session, error) {
	if id == "" {
		return j.LatestSession()
	}
	sessions, err := j.Sessions()
	if err != nil {
		return journal.Session{}, err
	}
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return journal.Session{}, errFactory.WithData(errors.ErrSessionMissing, id)
}

func printJSON(value any) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
