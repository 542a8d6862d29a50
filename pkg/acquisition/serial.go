package acquisition

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/ericogr/sct013-to-mqtt/pkg/bridge"
	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

const (
	// DefaultBaudRate matches the bridge firmware.
	DefaultBaudRate = 115200
	// DefaultSerialTimeout bounds the wait for one reply.
	DefaultSerialTimeout = 2 * time.Second
)

// ErrTimeout is returned when the bridge does not answer in time.
var ErrTimeout = errors.New("serial read timeout")

// Serial talks to a microcontroller running the bridge firmware.
type Serial struct {
	rw     io.ReadWriter
	closer io.Closer
	reader *bufio.Reader
	bits   int
	mu     sync.Mutex
}

// OpenSerial opens port at baudRate and returns the bridge client.
func OpenSerial(port string, baudRate int) (*Serial, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	p, err := serial.Open(port, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(DefaultSerialTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	s := NewSerial(p)
	s.reader = bufio.NewReader(timeoutReader{p})
	s.closer = p
	return s, nil
}

// NewSerial speaks the bridge protocol over rw.
func NewSerial(rw io.ReadWriter) *Serial {
	return &Serial{rw: rw, reader: bufio.NewReader(rw)}
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

func (s *Serial) SetMode(channel int, mode sct013.Mode) error {
	op := byte(bridge.OpInput)
	if mode == sct013.ModeAnalog {
		op = bridge.OpAnalog
	}
	_, err := s.request(bridge.Command{Op: op, Arg: channel})
	return err
}

func (s *Serial) SetResolution(bits int) error {
	if _, err := s.request(bridge.Command{Op: bridge.OpResolution, Arg: bits}); err != nil {
		return err
	}
	s.mu.Lock()
	s.bits = bits
	s.mu.Unlock()
	return nil
}

func (s *Serial) ReadRaw(channel int) (int, error) {
	v, err := s.request(bridge.Command{Op: bridge.OpRead, Arg: channel})
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	bits := s.bits
	s.mu.Unlock()
	if v < 0 || (bits > 0 && v > int(sct013.FullScaleForBits(bits))) {
		return 0, fmt.Errorf("sample %d out of range for %d bits", v, bits)
	}
	return v, nil
}

// Close closes the port when it was opened by OpenSerial.
func (s *Serial) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

func (s *Serial) request(cmd bridge.Command) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.rw, cmd.String()+"\n"); err != nil {
		return 0, fmt.Errorf("send %s: %w", cmd, err)
	}
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return 0, fmt.Errorf("reply to %s: %w", cmd, err)
		}
		// the firmware may emit blank lines on reset
		if strings.TrimSpace(line) == "" {
			continue
		}
		v, err := bridge.ParseReply(line)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", cmd, err)
		}
		return v, nil
	}
}

// timeoutReader turns the empty read go.bug.st/serial returns on timeout
// into ErrTimeout.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrTimeout
	}
	return n, err
}
