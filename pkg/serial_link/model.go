package serial_link

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/config"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
)

// PortInfo describes one serial device found during discovery.
type PortInfo struct {
	Name        string
	Description string
}

// PortLister enumerates the serial devices currently attached.
type PortLister func() ([]PortInfo, error)

// PortOpener opens a serial device. Reads on the returned port must return
// within readTimeout, with (0, io.EOF) or (0, nil) when nothing arrived.
type PortOpener func(name string, baudrate uint, readTimeout time.Duration) (io.ReadWriteCloser, error)

type Options struct {
	// Explicit device; skips discovery when set
	Device               string
	Baudrate             uint
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	PollInterval         time.Duration
	JoinTimeout          time.Duration
	BacklogThreshold     int
	SubscriberBuffer     int
	// How long a full subscriber may hold up a status or result line
	LifecycleWait        time.Duration
	MaxConsecutiveErrors int

	Lister PortLister
	Opener PortOpener
}

func OptionsFromConfig(cfg config.SerialConfig) Options {
	return Options{
		Device:               cfg.Device,
		Baudrate:             cfg.Baudrate,
		ReadTimeout:          time.Duration(cfg.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:         time.Duration(cfg.WriteTimeoutMs) * time.Millisecond,
		PollInterval:         time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		JoinTimeout:          time.Duration(cfg.JoinTimeoutMs) * time.Millisecond,
		BacklogThreshold:     cfg.BacklogThreshold,
		SubscriberBuffer:     cfg.SubscriberBuffer,
		MaxConsecutiveErrors: 10,
		Lister:               EnumeratePorts,
		Opener:               OpenSerialPort,
	}
}

// Link owns the serial connection to the rig microcontroller. There is one
// Link per process; sensor managers share it by reference.
type Link struct {
	opts Options

	stateMu    sync.RWMutex
	serialPort io.ReadWriteCloser
	connected  bool
	portName   string
	sessionID  string
	stopCh     chan struct{}
	doneCh     chan struct{}

	// Single writer to the port, held for the whole Write call
	writeSlot chan struct{}

	// Bytes received but not yet terminated by a newline
	pendingMu sync.Mutex
	pending   []byte

	subsMu sync.RWMutex
	subs   []*Subscription
	closed bool
}

// SubscriberStats counts deliveries to one subscription.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Subscription receives every parsed telemetry message, in the order the
// link read them. Messages are dropped when the buffer is full.
type Subscription struct {
	name    string
	ch      chan telemetry.Message
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func (s *Subscription) Name() string {
	return s.name
}

func (s *Subscription) C() <-chan telemetry.Message {
	return s.ch
}

func (s *Subscription) Stats() SubscriberStats {
	return SubscriberStats{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
	}
}
