package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/internal/metrics"
	"github.com/randalmurphal/pantrykit/sse"
	"github.com/randalmurphal/pantrykit/transport"
)

// State is the lifecycle state of an EventStream.
type State int32

const (
	// StateActive means headers were received and events may follow.
	StateActive State = iota
	// StateEnded means the source is exhausted, failed, or was closed.
	StateEnded
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Option configures an EventStream.
type Option func(*EventStream)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *EventStream) { s.logger = logger }
}

// WithMaxLineSize bounds a single line of the event stream.
func WithMaxLineSize(n int) Option {
	return func(s *EventStream) { s.maxLine = n }
}

// bodyCloser closes a response body once, from Close or from the cleanup
// that runs when an unclosed stream is garbage collected.
type bodyCloser struct {
	body   io.ReadCloser
	once   sync.Once
	closed atomic.Bool
	err    error
}

func (c *bodyCloser) close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		c.err = c.body.Close()
		metrics.OpenStreams.Dec()
	})
	return c.err
}

// EventStream is a pull-based sequence of inference events. Each call to
// Next reads only as much of the body as the next event needs.
//
// Malformed frames (invalid UTF-8, invalid JSON, unknown event kinds) are
// dropped, counted and logged at debug level. A failed read ends the stream;
// the cause is available from Err.
//
// Next must not be called concurrently. Close may be called from any
// goroutine and unblocks a pending Next.
type EventStream struct {
	dec     *sse.Decoder
	closer  *bodyCloser
	logger  *slog.Logger
	maxLine int

	next    sync.Mutex
	state   atomic.Int32
	dropped atomic.Int64

	errMu sync.Mutex
	err   error
}

// Open posts body to path and returns the response as an EventStream. A
// non-2xx answer is read, closed and returned as *transport.APIError.
// Cancelling ctx closes the underlying body.
func Open(ctx context.Context, doer transport.Doer, path string, body []byte, opts ...Option) (*EventStream, error) {
	resp, err := doer.Dispatch(ctx, transport.NewRequest(http.MethodPost, path, body))
	if err != nil {
		return nil, err
	}
	if err := transport.CheckStatus(resp); err != nil {
		return nil, err
	}
	return New(resp.Body, opts...), nil
}

// New wraps an event-stream body. The stream owns body from now on.
func New(body io.ReadCloser, opts ...Option) *EventStream {
	s := &EventStream{
		closer: &bodyCloser{body: body},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var decOpts []sse.DecoderOption
	if s.maxLine > 0 {
		decOpts = append(decOpts, sse.WithMaxLineSize(s.maxLine))
	}
	s.dec = sse.NewDecoder(body, decOpts...)

	metrics.OpenStreams.Inc()
	runtime.AddCleanup(s, func(c *bodyCloser) { _ = c.close() }, s.closer)
	return s
}

// Next returns the next event. It returns io.EOF once the stream has ended,
// whether the server finished, the connection failed or Close was called.
func (s *EventStream) Next() (api.LLMEvent, error) {
	s.next.Lock()
	defer s.next.Unlock()

	for s.State() == StateActive {
		f, err := s.dec.Next()
		if err != nil {
			s.fail(err)
			break
		}
		if f.KeepAlive() {
			continue
		}

		ev, reason, err := decodeFrame(f)
		if err != nil {
			s.dropped.Add(1)
			metrics.FramesDropped.WithLabelValues(reason).Inc()
			s.logger.Debug("dropped stream frame",
				slog.String("reason", reason),
				slog.Any("error", err))
			continue
		}

		metrics.StreamEvents.WithLabelValues(string(ev.Event.Kind)).Inc()
		return ev, nil
	}

	return api.LLMEvent{}, io.EOF
}

// fail ends the stream after a read error. Errors caused by our own Close are
// not recorded.
func (s *EventStream) fail(err error) {
	defer s.end()

	if errors.Is(err, io.EOF) || s.closer.closed.Load() {
		return
	}

	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Debug("event stream cancelled", slog.Any("error", err))
		return
	}
	s.logger.Warn("event stream read failed", slog.Any("error", err))
}

func (s *EventStream) end() {
	s.state.Store(int32(StateEnded))
	_ = s.closer.close()
}

// decodeFrame turns a message frame into an event, or reports why it was
// dropped.
func decodeFrame(f sse.Frame) (api.LLMEvent, string, error) {
	if !utf8.ValidString(f.Data) {
		return api.LLMEvent{}, metrics.ReasonInvalidUTF8, errors.New("frame data is not valid UTF-8")
	}
	ev, err := api.ParseEvent([]byte(f.Data))
	if err != nil {
		if errors.Is(err, api.ErrUnknownEventKind) {
			return api.LLMEvent{}, metrics.ReasonUnknownKind, err
		}
		return api.LLMEvent{}, metrics.ReasonInvalidJSON, err
	}
	return ev, "", nil
}

// Err returns the read error that ended the stream, if any. A stream that
// ended normally or through Close has no error.
func (s *EventStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// State returns the current lifecycle state.
func (s *EventStream) State() State {
	return State(s.state.Load())
}

// Dropped returns how many frames were dropped as malformed.
func (s *EventStream) Dropped() int64 {
	return s.dropped.Load()
}

// Close ends the stream and releases the connection. It is safe to call more
// than once and from any goroutine.
func (s *EventStream) Close() error {
	s.state.Store(int32(StateEnded))
	return s.closer.close()
}

// All returns an iterator over the remaining events. Leaving the loop, by
// exhaustion or break, closes the stream.
//
//	for ev := range s.All() {
//	    fmt.Print(ev.Text())
//	}
//	if err := s.Err(); err != nil {
//	    return err
//	}
func (s *EventStream) All() iter.Seq[api.LLMEvent] {
	return func(yield func(api.LLMEvent) bool) {
		defer s.Close()
		for {
			ev, err := s.Next()
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}
