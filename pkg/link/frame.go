// Package link carries joint commands from the controller to the actuator node as ASCII frames
// of the form "#j1;j2;j3;j4" (degrees) over a persistent TCP connection.
package link

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// NumFields is the number of values in a frame: three joints and the claw.
const NumFields = 4

const (
	frameStart = '#'
	fieldSep   = ';'
)

var (
	// ErrParse is returned for malformed frames. The frame is dropped, the connection stays up.
	ErrParse = errors.New("malformed frame")
	// ErrLink is returned when a frame cannot be delivered to the node.
	ErrLink = errors.New("link failure")
)

// Frame is one joint command in degrees: base, shoulder, elbow, claw.
type Frame [NumFields]float64

// String encodes the frame with the shortest decimal representation of each field.
func (f Frame) String() string {
	var sb strings.Builder
	sb.WriteByte(frameStart)
	for i, v := range f {
		if i > 0 {
			sb.WriteByte(fieldSep)
		}
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (f Frame) MarshalText() ([]byte, error) {
	for i, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("frame field %d is not finite", i)
		}
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Frame) UnmarshalText(text []byte) error {
	parsed, err := ParseFrame(text)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFrame decodes a single frame. Surrounding whitespace is ignored.
func ParseFrame(b []byte) (Frame, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != frameStart {
		return Frame{}, errors.Wrapf(ErrParse, "%q: missing %q", b, frameStart)
	}

	fields := strings.Split(string(b[1:]), string(fieldSep))
	if len(fields) != NumFields {
		return Frame{}, errors.Wrapf(ErrParse, "%q: got %d fields, want %d", b, len(fields), NumFields)
	}

	var f Frame
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Frame{}, errors.Wrapf(ErrParse, "%q: field %d is not a finite number", b, i)
		}
		f[i] = v
	}
	return f, nil
}
