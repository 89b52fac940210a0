package sse

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxLineSize bounds a single line of the stream.
const DefaultMaxLineSize = 10 << 20

// ErrLineTooLong is returned when a line exceeds the decoder's limit. The
// decoder is unusable afterwards.
var ErrLineTooLong = errors.New("sse: line too long")

// ErrFrameTooLarge is returned when the data lines of one frame together
// exceed the line limit. The decoder is unusable afterwards.
var ErrFrameTooLarge = errors.New("sse: frame data too large")

// Frame is one dispatched block of the stream.
type Frame struct {
	// ID is the last event id seen on the stream, carried forward as in
	// the EventSource model.
	ID string

	// Event is the event name, empty when the block had no event field.
	Event string

	// Data is the concatenation of the block's data lines joined by "\n".
	Data string

	// HasData is false for blocks made only of comments, ids, event names
	// or retry hints. Those are keep-alives.
	HasData bool

	// Retry is the reconnection hint, set when HasRetry is true.
	Retry    time.Duration
	HasRetry bool
}

// KeepAlive reports whether the frame carries no message.
func (f Frame) KeepAlive() bool {
	return !f.HasData
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxLineSize sets the longest accepted line in bytes.
func WithMaxLineSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Decoder reads frames from a text/event-stream body. It reads only as far
// as needed to produce the next frame.
type Decoder struct {
	r       *bufio.Reader
	maxLine int

	lastID string
	skipLF bool // previous line ended in a bare \r
	err    error
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:       bufio.NewReader(r),
		maxLine: DefaultMaxLineSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// block accumulates the fields of the frame being read.
type block struct {
	frame   Frame
	data    strings.Builder
	touched bool
}

// Next returns the next frame. It returns io.EOF once the stream is
// exhausted; a final block holding data is still dispatched when the stream
// ends without a blank line.
func (d *Decoder) Next() (Frame, error) {
	if d.err != nil {
		return Frame{}, d.err
	}

	var b block
	for {
		line, err := d.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) && b.frame.HasData {
				d.err = io.EOF
				return d.finish(&b), nil
			}
			d.err = err
			return Frame{}, err
		}

		if len(line) == 0 {
			if b.touched {
				return d.finish(&b), nil
			}
			continue
		}
		if err := d.field(&b, line); err != nil {
			d.err = err
			return Frame{}, err
		}
	}
}

func (d *Decoder) finish(b *block) Frame {
	f := b.frame
	f.ID = d.lastID
	f.Data = b.data.String()
	return f
}

// field applies one non-blank line to the block.
func (d *Decoder) field(b *block, line []byte) error {
	b.touched = true
	if line[0] == ':' {
		return nil
	}

	name, value := line, []byte(nil)
	if i := bytes.IndexByte(line, ':'); i >= 0 {
		name, value = line[:i], line[i+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	}

	switch string(name) {
	case "data":
		if b.data.Len()+len(value)+1 > d.maxLine {
			return ErrFrameTooLarge
		}
		if b.frame.HasData {
			b.data.WriteByte('\n')
		}
		b.data.Write(value)
		b.frame.HasData = true
	case "event":
		b.frame.Event = string(value)
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			d.lastID = string(value)
		}
	case "retry":
		if ms, ok := parseRetry(value); ok {
			b.frame.Retry = time.Duration(ms) * time.Millisecond
			b.frame.HasRetry = true
		}
	}
	return nil
}

func parseRetry(value []byte) (int64, bool) {
	if len(value) == 0 {
		return 0, false
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	ms, err := strconv.ParseInt(string(value), 10, 64)
	return ms, err == nil
}

// readLine returns the next line without its terminator. Lines end in \n,
// \r\n or \r. A trailing unterminated line is returned before io.EOF.
func (d *Decoder) readLine() ([]byte, error) {
	var line []byte
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}

		if d.skipLF {
			d.skipLF = false
			if c == '\n' {
				continue
			}
		}

		switch c {
		case '\n':
			return line, nil
		case '\r':
			d.skipLF = true
			return line, nil
		}

		if len(line) >= d.maxLine {
			return nil, ErrLineTooLong
		}
		line = append(line, c)
	}
}
