// Package sensor reads CO2 concentrations from a SenseAir S8 over its
// serial Modbus interface.
package sensor

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"s8bridge/internal/utils"
)

// Serial settings for the S8: 9600 baud, 8 data bits, no parity, one
// stop bit. The sensor needs a short quiet period around each
// transaction, and a read that produces nothing within readTimeout is
// treated as a truncated response.
const (
	baudRate    = 9600
	readTimeout = 500 * time.Millisecond
	settleDelay = 100 * time.Millisecond
)

// port is the subset of serial.Port the reader uses. Tests substitute
// an in-memory implementation.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	Drain() error
}

// openFunc opens the serial device. Production uses openSerial; tests
// inject fakes.
type openFunc func(device string) (port, error)

// Reader acquires single CO2 readings. Each Acquire call owns the
// device for its full lifetime: open, flush, command, response, close.
// No file descriptor stays open between calls, so an unplugged or
// reset adapter only costs one cycle.
type Reader struct {
	device string
	open   openFunc
	logger *slog.Logger
}

func NewReader(device string, logger *slog.Logger) *Reader {
	return &Reader{device: device, open: openSerial, logger: logger}
}

func openSerial(device string) (port, error) {
	p, err := serial.Open(device, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Acquire performs one Modbus transaction and returns the CO2
// concentration in ppm. Transport failures and malformed responses are
// returned as errors; the port is closed on every path.
func (r *Reader) Acquire() (int, error) {
	p, err := r.open(r.device)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", r.device, err)
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			r.logger.Warn("serial close failed", "device", r.device, "error", cerr)
		}
	}()

	// Drop whatever a previous transaction left in the input buffer,
	// then give the sensor its quiet period before the command.
	if err := p.ResetInputBuffer(); err != nil {
		return 0, fmt.Errorf("flush input: %w", err)
	}
	time.Sleep(settleDelay)

	r.logger.Debug("sending read command", "device", r.device, "frame", utils.BytesToHex(readCommand))
	if _, err := p.Write(readCommand); err != nil {
		return 0, fmt.Errorf("write command: %w", err)
	}
	if err := p.Drain(); err != nil {
		return 0, fmt.Errorf("drain output: %w", err)
	}
	time.Sleep(settleDelay)

	resp, err := readResponse(p)
	if err != nil {
		return 0, err
	}
	r.logger.Debug("received response", "device", r.device, "frame", utils.BytesToHex(resp))

	return decodeReading(resp)
}

// readResponse collects up to responseLen bytes. A zero-byte read
// means the port's read timeout expired; whatever arrived by then goes
// to the decoder, which rejects short frames.
func readResponse(p port) ([]byte, error) {
	buf := make([]byte, responseLen)
	total := 0
	for total < responseLen {
		n, err := p.Read(buf[total:])
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}
