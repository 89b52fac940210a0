package stream

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
)

// ErrIncomplete is returned by Collect when the stream ends before a
// completion or error event arrives.
var ErrIncomplete = errors.New("stream ended before completion")

// InferenceError is a PromptError event reported by the server.
type InferenceError struct {
	Message string
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %s", e.Message)
}

// Accumulator folds prompt events into the generated text.
//
// Thread-safe for concurrent append and read operations.
type Accumulator struct {
	text     strings.Builder
	final    string
	streamID uuid.UUID
	events   int
	done     bool
	err      error
	mu       sync.RWMutex
}

// NewAccumulator creates an empty Accumulator.
//
// Example:
//
//	acc := stream.NewAccumulator()
//	for ev := range s.All() {
//	    acc.Append(ev)
//	}
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds one event.
func (a *Accumulator) Append(ev api.LLMEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.events++
	if a.streamID == uuid.Nil {
		a.streamID = ev.StreamID
	}

	switch ev.Event.Kind {
	case api.EventPromptProgress:
		if ev.Event.Progress != nil {
			a.text.WriteString(ev.Event.Progress.Next)
		}
	case api.EventPromptCompletion:
		a.done = true
		if ev.Event.Completion != nil {
			a.final = ev.Event.Completion.Previous
		}
	case api.EventPromptError:
		a.done = true
		msg := ""
		if ev.Event.Error != nil {
			msg = ev.Event.Error.Message
		}
		a.err = &InferenceError{Message: msg}
	}
}

// Text returns the generated text. After a completion event this is the text
// the server reported; before it, the concatenated progress pieces.
func (a *Accumulator) Text() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.done && a.final != "" {
		return a.final
	}
	return a.text.String()
}

// Done reports whether a completion or error event was seen.
func (a *Accumulator) Done() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Err returns the inference error, if one was reported.
func (a *Accumulator) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Events returns how many events were appended.
func (a *Accumulator) Events() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

// StreamID returns the id of the first event's stream.
func (a *Accumulator) StreamID() uuid.UUID {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.streamID
}

// Reset clears all state.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text.Reset()
	a.final = ""
	a.streamID = uuid.Nil
	a.events = 0
	a.done = false
	a.err = nil
}

// Consume appends events from s until a completion or error event, or until
// the stream ends. The stream is closed on return.
func (a *Accumulator) Consume(s *EventStream) error {
	defer s.Close()

	for ev := range s.All() {
		a.Append(ev)
		if a.Done() {
			break
		}
	}

	if err := a.Err(); err != nil {
		return err
	}
	if err := s.Err(); err != nil {
		return err
	}
	if !a.Done() {
		return ErrIncomplete
	}
	return nil
}

// Collect drains s and returns the generated text. A PromptError event is
// returned as *InferenceError, a stream cut short as ErrIncomplete or the
// read error. The text gathered so far is returned in every case.
func Collect(s *EventStream) (string, error) {
	acc := NewAccumulator()
	err := acc.Consume(s)
	return acc.Text(), err
}
