// Package bridge implements the line protocol spoken between the host and a
// microcontroller that owns the ADC.
//
// Each request is one line: an opcode letter followed by a decimal argument.
//
//	I<ch>    configure channel as input      -> OK
//	A<ch>    configure channel as analog     -> OK
//	B<bits>  set conversion resolution       -> OK
//	R<ch>    read one raw sample             -> <count>
//
// Failures are answered with "ERR <message>".
package bridge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ericogr/sct013-to-mqtt/pkg/sct013"
)

const (
	OpInput      = 'I'
	OpAnalog     = 'A'
	OpResolution = 'B'
	OpRead       = 'R'

	ReplyOK     = "OK"
	ReplyErrPfx = "ERR "
)

// ErrMalformed is returned for lines that are not a valid request.
var ErrMalformed = errors.New("malformed command")

// Command is one decoded request.
type Command struct {
	Op  byte
	Arg int
}

func (c Command) String() string {
	return string(c.Op) + strconv.Itoa(c.Arg)
}

// ParseCommand decodes a request line.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if len(line) < 2 {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	op := line[0]
	switch op {
	case OpInput, OpAnalog, OpResolution, OpRead:
	default:
		return Command{}, fmt.Errorf("%w: unknown opcode %q", ErrMalformed, op)
	}
	arg, err := strconv.Atoi(line[1:])
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Command{Op: op, Arg: arg}, nil
}

// Handle executes one request line against acq and returns the reply line
// without its terminator.
func Handle(acq sct013.Acquisition, line string) string {
	cmd, err := ParseCommand(line)
	if err != nil {
		return ReplyErrPfx + err.Error()
	}
	switch cmd.Op {
	case OpInput:
		err = acq.SetMode(cmd.Arg, sct013.ModeInput)
	case OpAnalog:
		err = acq.SetMode(cmd.Arg, sct013.ModeAnalog)
	case OpResolution:
		err = acq.SetResolution(cmd.Arg)
	case OpRead:
		var v int
		v, err = acq.ReadRaw(cmd.Arg)
		if err == nil {
			return strconv.Itoa(v)
		}
	}
	if err != nil {
		return ReplyErrPfx + err.Error()
	}
	return ReplyOK
}

// ParseReply interprets a reply line. Numeric replies are returned as the
// value; OK returns 0.
func ParseReply(line string) (int, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, ReplyErrPfx) {
		return 0, errors.New(strings.TrimPrefix(line, ReplyErrPfx))
	}
	if line == ReplyOK {
		return 0, nil
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("unexpected reply %q", line)
	}
	return v, nil
}
