package sensor

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// fakePort is an in-memory serial port that serves a canned response
// and records every call in order.
type fakePort struct {
	response []byte
	chunk    int // max bytes returned per Read; 0 means no limit

	flushErr error
	writeErr error
	drainErr error
	readErr  error

	ops    []string
	wrote  []byte
	closes int
	pos    int
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.ops = append(f.ops, "read")
	if f.readErr != nil {
		return 0, f.readErr
	}
	avail := f.response[f.pos:]
	if f.chunk > 0 && len(avail) > f.chunk {
		avail = avail[:f.chunk]
	}
	n := copy(p, avail)
	f.pos += n
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.ops = append(f.ops, "write")
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.wrote = append(f.wrote, p...)
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.ops = append(f.ops, "close")
	f.closes++
	return nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.ops = append(f.ops, "flush")
	return f.flushErr
}

func (f *fakePort) Drain() error {
	f.ops = append(f.ops, "drain")
	return f.drainErr
}

func newTestReader(p *fakePort) *Reader {
	return &Reader{
		device: "/dev/ttyTEST",
		open:   func(string) (port, error) { return p, nil },
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestAcquire(t *testing.T) {
	t.Run("full response in one read", func(t *testing.T) {
		p := &fakePort{response: makeResponse(842)}
		r := newTestReader(p)

		got, err := r.Acquire()
		if err != nil {
			t.Fatalf("Acquire() returned error: %v", err)
		}
		if got != 842 {
			t.Errorf("Acquire() = %d, want 842", got)
		}
		if !bytes.Equal(p.wrote, readCommand) {
			t.Errorf("wrote % X, want % X", p.wrote, readCommand)
		}
		wantOps := []string{"flush", "write", "drain", "read", "close"}
		if got := strings.Join(p.ops, " "); got != strings.Join(wantOps, " ") {
			t.Errorf("call order = %q, want %q", got, strings.Join(wantOps, " "))
		}
	})

	t.Run("response arrives in fragments", func(t *testing.T) {
		p := &fakePort{response: makeResponse(1204), chunk: 2}
		r := newTestReader(p)

		got, err := r.Acquire()
		if err != nil {
			t.Fatalf("Acquire() returned error: %v", err)
		}
		if got != 1204 {
			t.Errorf("Acquire() = %d, want 1204", got)
		}
	})

	t.Run("short response is rejected", func(t *testing.T) {
		p := &fakePort{response: makeResponse(500)[:5]}
		r := newTestReader(p)

		_, err := r.Acquire()
		if err == nil {
			t.Fatal("Acquire() succeeded on a 5-byte response")
		}
		if !strings.Contains(err.Error(), "length 5") {
			t.Errorf("error = %q, want mention of length 5", err)
		}
		if p.closes != 1 {
			t.Errorf("closes = %d, want 1", p.closes)
		}
	})

	t.Run("silent sensor times out", func(t *testing.T) {
		p := &fakePort{}
		r := newTestReader(p)

		if _, err := r.Acquire(); err == nil {
			t.Fatal("Acquire() succeeded with no response bytes")
		}
		if p.closes != 1 {
			t.Errorf("closes = %d, want 1", p.closes)
		}
	})

	t.Run("open failure", func(t *testing.T) {
		openErr := errors.New("no such device")
		r := &Reader{
			device: "/dev/ttyTEST",
			open:   func(string) (port, error) { return nil, openErr },
			logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		}
		_, err := r.Acquire()
		if !errors.Is(err, openErr) {
			t.Errorf("error = %v, want wrapped %v", err, openErr)
		}
	})

	t.Run("flush failure closes the port", func(t *testing.T) {
		p := &fakePort{flushErr: errors.New("ioctl failed")}
		r := newTestReader(p)

		if _, err := r.Acquire(); err == nil {
			t.Fatal("Acquire() succeeded despite flush failure")
		}
		if p.closes != 1 {
			t.Errorf("closes = %d, want 1", p.closes)
		}
	})

	t.Run("write failure closes the port", func(t *testing.T) {
		p := &fakePort{writeErr: errors.New("device gone")}
		r := newTestReader(p)

		if _, err := r.Acquire(); err == nil {
			t.Fatal("Acquire() succeeded despite write failure")
		}
		if p.closes != 1 {
			t.Errorf("closes = %d, want 1", p.closes)
		}
	})

	t.Run("read failure closes the port", func(t *testing.T) {
		p := &fakePort{readErr: errors.New("device gone")}
		r := newTestReader(p)

		if _, err := r.Acquire(); err == nil {
			t.Fatal("Acquire() succeeded despite read failure")
		}
		if p.closes != 1 {
			t.Errorf("closes = %d, want 1", p.closes)
		}
	})
}
