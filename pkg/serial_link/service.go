package serial_link

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/logger"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
	"github.com/google/uuid"
)

// A partial line longer than this is garbage from a desynced stream.
const maxPendingBytes = 4096

// Pause after a failed read before trying again.
const readErrorBackoff = 100 * time.Millisecond

var errFactory = errors.New()

// Ports that can flush their OS input queue.
type inputResetter interface {
	ResetInputBuffer() error
}

// Ports that can report how many received bytes the OS still holds.
type inputQueue interface {
	InputQueued() (int, error)
}

// Initialize a new Link. Nothing is opened until Connect is called.
func NewLink(opts Options) *Link {
	if opts.Lister == nil {
		opts.Lister = EnumeratePorts
	}
	if opts.Opener == nil {
		opts.Opener = OpenSerialPort
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = time.Second
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 2 * time.Second
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = 64
	}
	if opts.LifecycleWait <= 0 {
		opts.LifecycleWait = 100 * time.Millisecond
	}

	return &Link{
		opts:      opts,
		writeSlot: make(chan struct{}, 1),
	}
}

// Connect opens the configured device, or the best discovered one, and
// starts the background reader. Connecting an open link is a no-op.
func (l *Link) Connect() error {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()

	if l.isClosed() {
		return errFactory.New(errors.ErrLinkClosed)
	}
	if l.connected {
		return nil
	}

	name := l.opts.Device
	if name == "" {
		ports, err := l.opts.Lister()
		if err != nil {
			return errFactory.Wrap(errors.ErrPortNotFound, err)
		}
		name, err = SelectPort(ports)
		if err != nil {
			return err
		}
		logger.Info().Str("port", name).Msg("Discovered rig serial port")
	}

	port, err := l.opts.Opener(name, l.opts.Baudrate, l.opts.ReadTimeout)
	if err != nil {
		return errFactory.Wrap(errors.ErrConnectionFailure, err).WithData(name)
	}

	l.pendingMu.Lock()
	l.pending = l.pending[:0]
	l.pendingMu.Unlock()

	stop := make(chan struct{})
	done := make(chan struct{})
	l.serialPort = port
	l.connected = true
	l.portName = name
	l.sessionID = uuid.NewString()
	l.stopCh = stop
	l.doneCh = done

	go l.readLoop(port, stop, done)

	logger.Info().
		Str("port", name).
		Uint("baudrate", l.opts.Baudrate).
		Str("session", l.sessionID).
		Msg("Connected to rig")
	return nil
}

// Disconnect stops the reader and closes the port. Safe to call when
// already disconnected.
func (l *Link) Disconnect() {
	l.stateMu.Lock()
	if l.serialPort == nil {
		l.stateMu.Unlock()
		return
	}
	port, stop, done, name := l.serialPort, l.stopCh, l.doneCh, l.portName
	l.clearConnectionLocked()
	l.stateMu.Unlock()

	close(stop)
	select {
	case <-done:
	case <-time.After(l.opts.JoinTimeout):
		logger.WarnWithCode(errFactory.WithData(errors.ErrThreadJoinTimeout, name)).
			Msg("Serial reader did not stop in time")
	}

	if err := port.Close(); err != nil {
		logger.Warn().Err(err).Str("port", name).Msg("Error closing serial port")
	}
	logger.Info().Str("port", name).Msg("Disconnected from rig")
}

// SendCommand writes cmd followed by a newline. No acknowledgement is
// awaited; the rig answers with STATUS lines on the read path.
func (l *Link) SendCommand(cmd string) error {
	l.stateMu.RLock()
	port, connected := l.serialPort, l.connected
	l.stateMu.RUnlock()

	if !connected || port == nil {
		return errFactory.Wrap(errors.ErrWriteFailure, errFactory.New(errors.ErrNotConnected)).WithData(cmd)
	}

	l.discardStaleInput(port)

	deadline := time.NewTimer(l.opts.WriteTimeout)
	defer deadline.Stop()

	// The slot is held until Write returns, even after a timeout, so a
	// stuck write never overlaps the next one.
	select {
	case l.writeSlot <- struct{}{}:
	case <-deadline.C:
		return errFactory.WithMessage(errors.ErrWriteFailure, "previous write still pending").WithData(cmd)
	}

	payload := []byte(cmd + "\n")
	result := make(chan error, 1)
	go func() {
		defer func() { <-l.writeSlot }()
		_, err := port.Write(payload)
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			return errFactory.Wrap(errors.ErrWriteFailure, err).WithData(cmd)
		}
	case <-deadline.C:
		return errFactory.WithMessage(errors.ErrWriteFailure, "write timed out").WithData(cmd)
	}

	logger.Debug().Str("command", cmd).Msg("Command sent")
	return nil
}

// Subscribe registers a named consumer of parsed telemetry. Names are
// unique per link.
func (l *Link) Subscribe(name string) (*Subscription, error) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	if l.closed {
		return nil, errFactory.New(errors.ErrLinkClosed)
	}
	for _, s := range l.subs {
		if s.name == name {
			return nil, errFactory.WithData(errors.ErrSubscriberExists, name)
		}
	}

	sub := &Subscription{
		name: name,
		ch:   make(chan telemetry.Message, l.opts.SubscriberBuffer),
	}
	l.subs = append(l.subs, sub)
	return sub, nil
}

// Close disconnects and closes every subscription channel. The link cannot
// be reconnected afterwards.
func (l *Link) Close() {
	l.Disconnect()

	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for _, s := range l.subs {
		close(s.ch)
	}
}

func (l *Link) Connected() bool {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.connected
}

// Port returns the device name of the open connection, or "".
func (l *Link) Port() string {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.portName
}

// SessionID identifies the current connection. It changes on every Connect.
func (l *Link) SessionID() string {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.sessionID
}

func (l *Link) isClosed() bool {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()
	return l.closed
}

func (l *Link) clearConnectionLocked() {
	l.serialPort = nil
	l.connected = false
	l.portName = ""
	l.sessionID = ""
	l.stopCh = nil
	l.doneCh = nil
}

// Drops input that piled up while nobody sent commands, both the partial
// line held here and whatever the OS still queues, so the reply to the next
// command is not parsed behind stale bytes.
func (l *Link) discardStaleInput(port io.ReadWriteCloser) {
	if l.opts.BacklogThreshold <= 0 {
		return
	}

	queued := 0
	if q, ok := port.(inputQueue); ok {
		n, err := q.InputQueued()
		if err != nil {
			logger.Debug().Err(err).Msg("Could not query serial input queue")
		}
		queued = n
	}

	l.pendingMu.Lock()
	stale := len(l.pending) + queued
	if stale > l.opts.BacklogThreshold {
		l.pending = l.pending[:0]
	}
	l.pendingMu.Unlock()

	if stale <= l.opts.BacklogThreshold {
		return
	}

	if resetter, ok := port.(inputResetter); ok {
		if err := resetter.ResetInputBuffer(); err != nil {
			logger.Debug().Err(err).Msg("Could not reset serial input buffer")
		}
	}
	logger.Debug().Int("bytes", stale).Msg("Discarded stale serial input before command")
}

func (l *Link) readLoop(port io.ReadWriteCloser, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, 512)
	consecutiveErrors := 0
	maxErrors := l.opts.MaxConsecutiveErrors
	var lastError error

	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			consecutiveErrors = 0
			l.consume(buf[:n])
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil || err == io.EOF:
			// Read timeout with nothing waiting
			if !sleepOrStop(stop, l.opts.PollInterval) {
				return
			}
			continue
		}

		select {
		case <-stop:
			return
		default:
		}

		consecutiveErrors++
		lastError = err
		logger.Warn().
			Err(err).
			Int("attempt", consecutiveErrors).
			Int("max_attempts", maxErrors).
			Msg("Error reading from rig")

		if consecutiveErrors >= maxErrors {
			break
		}
		if !sleepOrStop(stop, readErrorBackoff) {
			return
		}
	}

	logger.ErrorWithCode(errFactory.Wrap(errors.ErrConnectionFailure, lastError)).
		Int("max_attempts", maxErrors).
		Msg("Too many consecutive read errors, dropping connection")
	l.connectionLost(port)
}

// Called from the reader after it gave up on port. The port is closed here
// unless Disconnect already took ownership of it.
func (l *Link) connectionLost(port io.ReadWriteCloser) {
	l.stateMu.Lock()
	owned := l.serialPort == port
	if owned {
		l.clearConnectionLocked()
	}
	l.stateMu.Unlock()

	if owned {
		port.Close()
	}
}

func (l *Link) consume(data []byte) {
	l.pendingMu.Lock()
	l.pending = append(l.pending, data...)

	var lines [][]byte
	for {
		idx := bytes.IndexByte(l.pending, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, l.pending[:idx])
		lines = append(lines, line)
		l.pending = l.pending[idx+1:]
	}

	if len(l.pending) > maxPendingBytes {
		logger.Warn().Int("bytes", len(l.pending)).Msg("Discarding unterminated serial input")
		l.pending = l.pending[:0]
	}
	l.pendingMu.Unlock()

	for _, line := range lines {
		l.processLine(line)
	}
}

func (l *Link) processLine(raw []byte) {
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), "\uFFFD"))
	if text == "" {
		return
	}

	msg, err := telemetry.Parse(text, time.Now())
	if err != nil {
		logger.Debug().Str("line", text).Msg("Ignoring unrecognised telemetry line")
		return
	}

	l.publish(msg)
}

func (l *Link) publish(msg telemetry.Message) {
	l.subsMu.RLock()
	defer l.subsMu.RUnlock()

	if l.closed {
		return
	}

	lifecycle := carriesLifecycle(msg)
	for _, s := range l.subs {
		if s.deliver(msg, lifecycle, l.opts.LifecycleWait) {
			continue
		}
		dropped := s.dropped.Add(1)
		logger.Warn().
			Str("subscriber", s.name).
			Str("kind", msg.Kind.String()).
			Uint64("dropped", dropped).
			Msg("Subscriber buffer full, dropping telemetry")
	}
}

// Lines that move a sensor state machine. Losing one can leave a manager
// stuck, unlike samples which the next one replaces.
func carriesLifecycle(msg telemetry.Message) bool {
	switch msg.Kind {
	case telemetry.KindStatus, telemetry.KindResult, telemetry.KindPresence:
		return true
	}
	return false
}

// deliver sends without blocking, or waits up to wait for lifecycle lines.
func (s *Subscription) deliver(msg telemetry.Message, lifecycle bool, wait time.Duration) bool {
	select {
	case s.ch <- msg:
		s.sent.Add(1)
		return true
	default:
	}
	if !lifecycle {
		return false
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case s.ch <- msg:
		s.sent.Add(1)
		return true
	case <-timer.C:
		return false
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
