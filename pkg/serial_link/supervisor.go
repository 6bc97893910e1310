package serial_link

import (
	"context"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
)

// SessionHooks are told about connection sessions as Maintain sees them.
type SessionHooks struct {
	Connected    func(sessionID, port string)
	Disconnected func(sessionID string)
}

// Maintain keeps the link connected until ctx ends, retrying every retry
// interval. Every attempt rediscovers the port. The link is disconnected
// when Maintain returns.
func (l *Link) Maintain(ctx context.Context, retry time.Duration, hooks SessionHooks) {
	ticker := time.NewTicker(retry)
	defer ticker.Stop()

	current := ""
	failures := 0
	check := func() {
		session := l.SessionID()
		if current != "" && session != current {
			if hooks.Disconnected != nil {
				hooks.Disconnected(current)
			}
			logger.Warn().Str("session", current).Msg("Rig connection lost")
			current = ""
		}
		if session != "" {
			current = session
			return
		}

		if err := l.Connect(); err != nil {
			failures++
			// Only the first failure in a row is worth a warning
			if failures == 1 {
				var coded errors.Error
				if errors.As(err, &coded) {
					logger.WarnWithCode(coded).Msg("Could not connect to rig, will keep trying")
				} else {
					logger.Warn().Err(err).Msg("Could not connect to rig, will keep trying")
				}
			}
			return
		}
		failures = 0
		current = l.SessionID()
		if hooks.Connected != nil {
			hooks.Connected(current, l.Port())
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			l.Disconnect()
			if current != "" && hooks.Disconnected != nil {
				hooks.Disconnected(current)
			}
			return
		case <-ticker.C:
			check()
		}
	}
}
