package link

import (
	"bytes"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Decoder splits a byte stream into frames. Frames carry no terminator, so a frame is complete
// once the next '#' arrives or the caller flushes. Reads may hold any number of frames or
// partial frames.
type Decoder struct {
	pending []byte
}

// Feed consumes a chunk and returns every frame it completes. Malformed segments, including
// bytes before the first '#', are reported in the combined error; they never stop decoding.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	d.pending = append(d.pending, chunk...)

	var (
		frames []Frame
		errs   error
	)
	if i := bytes.IndexByte(d.pending, frameStart); i > 0 {
		if junk := bytes.TrimSpace(d.pending[:i]); len(junk) > 0 {
			errs = multierr.Append(errs, errors.Wrapf(ErrParse, "%q: missing %q", junk, frameStart))
		}
		d.pending = d.pending[i:]
	}
	if len(d.pending) == 0 || d.pending[0] != frameStart {
		return frames, errs
	}

	for {
		next := bytes.IndexByte(d.pending[1:], frameStart)
		if next < 0 {
			break
		}
		f, err := ParseFrame(d.pending[:next+1])
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			frames = append(frames, f)
		}
		d.pending = d.pending[next+1:]
	}
	return frames, errs
}

// Flush decodes whatever is pending as a final frame.
func (d *Decoder) Flush() (Frame, bool, error) {
	rest := bytes.TrimSpace(d.pending)
	d.pending = d.pending[:0]
	if len(rest) == 0 {
		return Frame{}, false, nil
	}
	f, err := ParseFrame(rest)
	if err != nil {
		return Frame{}, false, err
	}
	return f, true, nil
}

// Pending reports whether a partial frame is buffered.
func (d *Decoder) Pending() bool {
	return len(bytes.TrimSpace(d.pending)) > 0
}
