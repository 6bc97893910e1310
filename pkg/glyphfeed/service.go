// Package glyphfeed receives detected display glyphs from the vision
// process over a websocket and hands them to the blood pressure decoder.
package glyphfeed

import (
	"context"
	"net/url"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/bpdecoder"
	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/gorilla/websocket"
)

// StartListener connects to the vision feed and sends each frame's glyphs
// to frames, reconnecting with exponential backoff. It returns nil when ctx
// ends and ErrFeedFailed after MaxRetries consecutive failed dials. Frames
// are dropped when the consumer is behind.
func StartListener(ctx context.Context, opts Options, frames chan<- []bpdecoder.Glyph) error {
	u := url.URL{Scheme: "ws", Host: opts.Host, Path: opts.Path}
	retryCount := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if retryCount > 0 {
			// Exponential backoff
			retryDelay := time.Duration(1<<(retryCount-1)) * opts.BaseRetryDelay
			if retryDelay > opts.MaxRetryDelay {
				retryDelay = opts.MaxRetryDelay
			}
			logger.Info().
				Dur("delay", retryDelay).
				Int("attempt", retryCount+1).
				Int("max_attempts", opts.MaxRetries).
				Msg("Retrying glyph feed connection")
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		logger.Debug().Str("url", u.String()).Msg("Connecting to glyph feed")

		dialer := *websocket.DefaultDialer
		dialer.HandshakeTimeout = 10 * time.Second
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			retryCount++
			logger.Warn().Err(err).Str("url", u.String()).Msg("Glyph feed connection failed")
			if retryCount >= opts.MaxRetries {
				return errors.New().Wrap(errors.ErrFeedFailed, err).WithData(u.String())
			}
			continue
		}

		logger.Info().Str("url", u.String()).Msg("Connected to glyph feed")
		retryCount = 0

		connectionBroken := handleConnection(ctx, c, opts, frames)
		c.Close()

		if !connectionBroken {
			return nil
		}
		logger.Warn().Msg("Glyph feed connection lost, will retry")
		retryCount = 1
	}
}

// handleConnection reads frames until the connection breaks (true) or ctx
// ends (false).
func handleConnection(ctx context.Context, c *websocket.Conn, opts Options, frames chan<- []bpdecoder.Glyph) bool {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("Glyph feed websocket error")
				} else {
					logger.Debug().Err(err).Msg("Glyph feed closed")
				}
				return
			}

			c.SetReadDeadline(time.Now().Add(opts.ReadTimeout))

			if messageType != websocket.TextMessage {
				logger.Debug().Int("type", messageType).Msg("Ignoring non-text glyph feed message")
				continue
			}

			frame, err := FrameFromJsonBytes(message)
			if err != nil {
				logger.Debug().Str("message", string(message)).Msg("Failed to parse glyph frame")
				continue
			}

			select {
			case frames <- frame.Glyphs:
			default:
				logger.Debug().Int("glyphs", len(frame.Glyphs)).Msg("Decoder busy, dropping glyph frame")
			}
		}
	}()

	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				logger.Debug().Err(err).Msg("Failed to ping glyph feed")
			}
		case <-done:
			return true
		case <-ctx.Done():
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Debug().Err(err).Msg("Error sending close message")
			}

			// Wait for close confirmation or timeout
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return false
		}
	}
}
