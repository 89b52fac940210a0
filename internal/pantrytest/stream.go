package pantrytest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/randalmurphal/pantrykit/api"
)

// StreamWriter writes event-stream frames for one prompt. Every method
// flushes so the client sees each frame as soon as it is written.
type StreamWriter struct {
	w       io.Writer
	flusher http.Flusher
	base    api.LLMEvent
}

// Event returns an event for this prompt carrying payload.
func (sw *StreamWriter) Event(payload api.EventPayload) api.LLMEvent {
	ev := sw.base
	ev.Timestamp = time.Now().UTC()
	ev.Event = payload
	return ev
}

// Send writes ev as one data frame.
func (sw *StreamWriter) Send(ev api.LLMEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		panic(fmt.Sprintf("pantrytest: marshal event: %v", err))
	}
	sw.Raw("data: " + string(data) + "\n\n")
}

// Progress sends a PromptProgress event.
func (sw *StreamWriter) Progress(previous, next string) {
	sw.Send(sw.Event(api.EventPayload{
		Kind:     api.EventPromptProgress,
		Progress: &api.PromptProgress{Previous: previous, Next: next},
	}))
}

// Completion sends a PromptCompletion event.
func (sw *StreamWriter) Completion(previous string) {
	sw.Send(sw.Event(api.EventPayload{
		Kind:       api.EventPromptCompletion,
		Completion: &api.PromptCompletion{Previous: previous},
	}))
}

// Error sends a PromptError event.
func (sw *StreamWriter) Error(message string) {
	sw.Send(sw.Event(api.EventPayload{
		Kind:  api.EventPromptError,
		Error: &api.PromptError{Message: message},
	}))
}

// KeepAlive sends a comment frame.
func (sw *StreamWriter) KeepAlive() {
	sw.Raw(":\n\n")
}

// Raw writes s unchanged.
func (sw *StreamWriter) Raw(s string) {
	_, _ = io.WriteString(sw.w, s)
	sw.flusher.Flush()
}
