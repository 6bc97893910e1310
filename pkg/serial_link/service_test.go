package serial_link

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/NotCoffee418/vitals_rig/pkg/errors"
	"github.com/NotCoffee418/vitals_rig/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(port *fakePort) Options {
	return Options{
		Baudrate:             115200,
		ReadTimeout:          5 * time.Millisecond,
		WriteTimeout:         50 * time.Millisecond,
		PollInterval:         time.Millisecond,
		JoinTimeout:          500 * time.Millisecond,
		BacklogThreshold:     100,
		SubscriberBuffer:     16,
		MaxConsecutiveErrors: 3,
		Lister: func() ([]PortInfo, error) {
			return []PortInfo{{Name: "/dev/ttyACM0", Description: "Arduino Mega 2560"}}, nil
		},
		Opener: func(name string, baudrate uint, readTimeout time.Duration) (io.ReadWriteCloser, error) {
			return port, nil
		},
	}
}

func receive(t *testing.T, sub *Subscription) telemetry.Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for telemetry")
		return telemetry.Message{}
	}
}

func TestConnectDiscoversPort(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	require.NoError(t, link.Connect())
	assert.True(t, link.Connected())
	assert.Equal(t, "/dev/ttyACM0", link.Port())
	assert.NotEmpty(t, link.SessionID())

	// Second connect keeps the session
	session := link.SessionID()
	require.NoError(t, link.Connect())
	assert.Equal(t, session, link.SessionID())
}

func TestConnectNoPortFound(t *testing.T) {
	opts := testOptions(newFakePort())
	opts.Lister = func() ([]PortInfo, error) { return nil, nil }
	link := NewLink(opts)

	err := link.Connect()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrPortNotFound))
	assert.False(t, link.Connected())
}

func TestConnectOpenFailure(t *testing.T) {
	opts := testOptions(newFakePort())
	opts.Device = "/dev/ttyUSB9"
	opts.Opener = func(string, uint, time.Duration) (io.ReadWriteCloser, error) {
		return nil, io.ErrUnexpectedEOF
	}
	link := NewLink(opts)

	err := link.Connect()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrConnectionFailure))
}

func TestLinesAreParsedAndDelivered(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	// Split across reads, with CRLF and a blank line
	port.feed("STATUS:WEIGHT_POW")
	port.feed("ERED_UP\r\n\r\nRESULT:HEIGHT:")
	port.feed("172.5\n")

	first := receive(t, sub)
	assert.Equal(t, telemetry.KindStatus, first.Kind)
	assert.Equal(t, "STATUS:WEIGHT_POWERED_UP", first.Raw)

	second := receive(t, sub)
	require.Equal(t, telemetry.KindResult, second.Kind)
	assert.Equal(t, "HEIGHT", second.Result.Tag)
	assert.InDelta(t, 172.5, second.Result.Value, 1e-9)

	assert.Equal(t, uint64(2), sub.Stats().Sent)
}

func TestInvalidUTF8IsReplaced(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.incoming <- []byte("DEBUG:boot \xff\xfe ok\n")

	msg := receive(t, sub)
	assert.Equal(t, telemetry.KindDebugText, msg.Kind)
	assert.True(t, strings.Contains(msg.Raw, "\uFFFD"))
}

func TestCorruptLinesAreSkipped(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed("RESULT:WEIGHT:abc\nRESULT:WEIGHT:70.1\n")

	msg := receive(t, sub)
	require.Equal(t, telemetry.KindResult, msg.Kind)
	assert.InDelta(t, 70.1, msg.Result.Value, 1e-9)
}

func TestSubscribersEachGetEveryMessage(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	a, err := link.Subscribe("a")
	require.NoError(t, err)
	b, err := link.Subscribe("b")
	require.NoError(t, err)

	_, err = link.Subscribe("a")
	assert.True(t, errors.HasCode(err, errors.ErrSubscriberExists))

	require.NoError(t, link.Connect())
	port.feed("STATUS:TEMP_POWERED_UP\n")

	assert.Equal(t, "STATUS:TEMP_POWERED_UP", receive(t, a).Raw)
	assert.Equal(t, "STATUS:TEMP_POWERED_UP", receive(t, b).Raw)
}

func TestFullSubscriberDropsNewest(t *testing.T) {
	port := newFakePort()
	opts := testOptions(port)
	opts.SubscriberBuffer = 1
	link := NewLink(opts)
	defer link.Close()

	sub, err := link.Subscribe("slow")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed("DEBUG:weight reading: 1\nDEBUG:weight reading: 2\nDEBUG:weight reading: 3\n")

	assert.Eventually(t, func() bool {
		return sub.Stats().Dropped == 2
	}, time.Second, 5*time.Millisecond)

	msg := receive(t, sub)
	assert.InDelta(t, 1.0, msg.Debug.Value, 1e-9)
}

func TestFullSubscriberWaitsForLifecycleLines(t *testing.T) {
	port := newFakePort()
	opts := testOptions(port)
	opts.SubscriberBuffer = 1
	opts.LifecycleWait = time.Second
	link := NewLink(opts)
	defer link.Close()

	sub, err := link.Subscribe("slow")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed("DEBUG:temp reading: 36.4\nSTATUS:TEMPERATURE_MEASUREMENT_COMPLETE\nRESULT:TEMPERATURE:36.5\n")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, telemetry.KindDebug, receive(t, sub).Kind)
	assert.Equal(t, "STATUS:TEMPERATURE_MEASUREMENT_COMPLETE", receive(t, sub).Raw)
	assert.Equal(t, telemetry.KindResult, receive(t, sub).Kind)
	assert.Zero(t, sub.Stats().Dropped)
}

func TestLifecycleLineDroppedAfterWait(t *testing.T) {
	port := newFakePort()
	opts := testOptions(port)
	opts.SubscriberBuffer = 1
	opts.LifecycleWait = 10 * time.Millisecond
	link := NewLink(opts)
	defer link.Close()

	sub, err := link.Subscribe("stuck")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed("STATUS:WEIGHT_POWERED_UP\nSTATUS:WEIGHT_MEASUREMENT_STARTED\n")

	assert.Eventually(t, func() bool {
		return sub.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "STATUS:WEIGHT_POWERED_UP", receive(t, sub).Raw)
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	require.NoError(t, link.Connect())
	require.NoError(t, link.SendCommand("START_WEIGHT"))
	require.NoError(t, link.SendCommand("POWER_DOWN_WEIGHT"))

	assert.Equal(t, "START_WEIGHT\nPOWER_DOWN_WEIGHT\n", port.writtenString())
}

func TestSendCommandNotConnected(t *testing.T) {
	link := NewLink(testOptions(newFakePort()))

	err := link.SendCommand("START_WEIGHT")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWriteFailure))
	assert.True(t, errors.HasCode(err, errors.ErrNotConnected))
}

func TestSendCommandTimeout(t *testing.T) {
	port := newFakePort()
	port.writeGate = make(chan struct{})
	link := NewLink(testOptions(port))
	defer func() {
		close(port.writeGate)
		link.Close()
	}()

	require.NoError(t, link.Connect())

	err := link.SendCommand("START_TEMPERATURE")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWriteFailure))
}

func TestStuckWriteBlocksNextCommand(t *testing.T) {
	port := newFakePort()
	port.writeGate = make(chan struct{})
	link := NewLink(testOptions(port))
	defer link.Close()

	require.NoError(t, link.Connect())

	err := link.SendCommand("POWER_UP_WEIGHT")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWriteFailure))

	// The first write has not returned, so this one must not start
	err = link.SendCommand("START_WEIGHT")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrWriteFailure))
	assert.Equal(t, 1, port.maxConcurrentWrites())

	close(port.writeGate)
	assert.Eventually(t, func() bool {
		return port.writtenString() == "POWER_UP_WEIGHT\n"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, link.SendCommand("START_WEIGHT"))
	assert.Equal(t, "POWER_UP_WEIGHT\nSTART_WEIGHT\n", port.writtenString())
	assert.Equal(t, 1, port.maxConcurrentWrites())
}

func TestSendCommandDiscardsStaleBacklog(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed(strings.Repeat("x", 150))
	assert.Eventually(t, func() bool {
		link.pendingMu.Lock()
		defer link.pendingMu.Unlock()
		return len(link.pending) == 150
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, link.SendCommand("START_MAX30102"))
	assert.Equal(t, 1, port.resetCount())

	// The next line is parsed on its own instead of behind the garbage
	port.feed("STATUS:MAX30102_POWERED_UP\n")
	msg := receive(t, sub)
	assert.Equal(t, "STATUS:MAX30102_POWERED_UP", msg.Raw)
}

func TestSendCommandFlushesQueuedInput(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	require.NoError(t, link.Connect())

	port.setQueued(150)
	require.NoError(t, link.SendCommand("START_HEIGHT"))
	assert.Equal(t, 1, port.resetCount())

	// Nothing left queued, nothing to flush
	require.NoError(t, link.SendCommand("START_HEIGHT"))
	assert.Equal(t, 1, port.resetCount())
}

func TestSmallBacklogIsKept(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	port.feed("RESULT:TEMP")
	assert.Eventually(t, func() bool {
		link.pendingMu.Lock()
		defer link.pendingMu.Unlock()
		return len(link.pending) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, link.SendCommand("START_TEMPERATURE"))
	assert.Equal(t, 0, port.resetCount())

	port.feed(":36.8\n")
	msg := receive(t, sub)
	require.Equal(t, telemetry.KindResult, msg.Kind)
	assert.Equal(t, "TEMP", msg.Result.Tag)
}

func TestDisconnectClosesPort(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))

	require.NoError(t, link.Connect())
	link.Disconnect()

	assert.False(t, link.Connected())
	assert.Empty(t, link.Port())
	assert.True(t, port.isClosed())

	// Idempotent
	link.Disconnect()
}

func TestReconnectRediscoversPort(t *testing.T) {
	port := newFakePort()
	opts := testOptions(port)
	listed := 0
	opts.Lister = func() ([]PortInfo, error) {
		listed++
		if listed == 1 {
			return []PortInfo{{Name: "/dev/ttyACM0", Description: "Arduino Mega 2560"}}, nil
		}
		return []PortInfo{{Name: "/dev/ttyUSB1", Description: "USB2.0-Serial CH340"}}, nil
	}
	link := NewLink(opts)
	defer link.Close()

	require.NoError(t, link.Connect())
	first := link.SessionID()
	assert.Equal(t, "/dev/ttyACM0", link.Port())

	link.Disconnect()
	assert.False(t, link.Connected())
	assert.Empty(t, link.Port())
	assert.Empty(t, link.SessionID())

	port.mu.Lock()
	port.closed = false
	port.mu.Unlock()

	require.NoError(t, link.Connect())
	assert.True(t, link.Connected())
	assert.Equal(t, "/dev/ttyUSB1", link.Port())
	assert.NotEqual(t, first, link.SessionID())
	assert.Equal(t, 2, listed)
}

func TestRepeatedReadErrorsDropConnection(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))
	defer link.Close()

	require.NoError(t, link.Connect())
	port.setReadErr(io.ErrUnexpectedEOF)

	assert.Eventually(t, func() bool {
		return !link.Connected()
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, port.isClosed())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	port := newFakePort()
	link := NewLink(testOptions(port))

	sub, err := link.Subscribe("test")
	require.NoError(t, err)
	require.NoError(t, link.Connect())

	link.Close()

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.True(t, errors.HasCode(link.Connect(), errors.ErrLinkClosed))

	_, err = link.Subscribe("late")
	assert.True(t, errors.HasCode(err, errors.ErrLinkClosed))
}
