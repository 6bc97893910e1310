package serial_link

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// fakePort feeds queued chunks to the reader and records writes.
type fakePort struct {
	mu       sync.Mutex
	incoming chan []byte
	written  bytes.Buffer
	closed   bool
	readErr  error
	// Blocks Write until released when set
	writeGate chan struct{}
	resets    int
	// Bytes the OS would still be holding
	queued int
	// Writes in progress, and the most ever seen at once
	writing    int
	maxWriting int
}

func newFakePort() *fakePort {
	return &fakePort{incoming: make(chan []byte, 64)}
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	readErr, closed := f.readErr, f.closed
	f.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	if readErr != nil {
		return 0, readErr
	}

	select {
	case chunk := <-f.incoming:
		return copy(p, chunk), nil
	case <-time.After(5 * time.Millisecond):
		return 0, io.EOF
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.writing++
	if f.writing > f.maxWriting {
		f.maxWriting = f.writing
	}
	f.mu.Unlock()

	if f.writeGate != nil {
		<-f.writeGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writing--
	return f.written.Write(p)
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.queued = 0
	return nil
}

func (f *fakePort) InputQueued() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued, nil
}

func (f *fakePort) setQueued(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = n
}

func (f *fakePort) maxConcurrentWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxWriting
}

func (f *fakePort) feed(s string) {
	f.incoming <- []byte(s)
}

func (f *fakePort) setReadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *fakePort) writtenString() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

func (f *fakePort) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePort) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}
