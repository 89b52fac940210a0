package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventKind is returned by ParseEvent when the payload carries a
// "type" tag this client does not know.
var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind identifies an inference event.
type EventKind string

const (
	EventPromptProgress   EventKind = "PromptProgress"
	EventPromptCompletion EventKind = "PromptCompletion"
	EventPromptError      EventKind = "PromptError"
	EventOther            EventKind = "Other"
)

// eventAliases accepts both tag spellings servers emit.
var eventAliases = map[string]EventKind{
	"PromptProgress":    EventPromptProgress,
	"PromptCompletion":  EventPromptCompletion,
	"PromptError":       EventPromptError,
	"Other":             EventOther,
	"prompt_progress":   EventPromptProgress,
	"prompt_completion": EventPromptCompletion,
	"prompt_error":      EventPromptError,
	"other":             EventOther,
}

// ParseEventKind resolves a wire tag to its EventKind.
func ParseEventKind(tag string) (EventKind, bool) {
	kind, ok := eventAliases[tag]
	return kind, ok
}

// PromptProgress carries the next piece of output. Previous is everything
// generated before it.
type PromptProgress struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

// PromptCompletion marks the end of a prompt. Previous is the full output.
type PromptCompletion struct {
	Previous string `json:"previous"`
}

// PromptError reports an inference failure.
type PromptError struct {
	Message string `json:"message"`
}

// UnmarshalJSON implements json.Unmarshaler. Both fields are required.
func (p *PromptProgress) UnmarshalJSON(data []byte) error {
	var raw struct {
		Previous *string `json:"previous"`
		Next     *string `json:"next"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Previous == nil:
		return missingField("previous")
	case raw.Next == nil:
		return missingField("next")
	}
	*p = PromptProgress{Previous: *raw.Previous, Next: *raw.Next}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Previous is required.
func (p *PromptCompletion) UnmarshalJSON(data []byte) error {
	var raw struct {
		Previous *string `json:"previous"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Previous == nil {
		return missingField("previous")
	}
	*p = PromptCompletion{Previous: *raw.Previous}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler. Message is required.
func (p *PromptError) UnmarshalJSON(data []byte) error {
	var raw struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Message == nil {
		return missingField("message")
	}
	*p = PromptError{Message: *raw.Message}
	return nil
}

// EventPayload is the body of an inference event, tagged by "type" on the
// wire. Check Kind to determine which field is populated; EventOther has no
// body.
type EventPayload struct {
	Kind EventKind

	Progress   *PromptProgress
	Completion *PromptCompletion
	Error      *PromptError
}

// MarshalJSON implements json.Marshaler.
func (p EventPayload) MarshalJSON() ([]byte, error) {
	var body any
	switch p.Kind {
	case EventPromptProgress:
		if p.Progress != nil {
			body = p.Progress
		}
	case EventPromptCompletion:
		if p.Completion != nil {
			body = p.Completion
		}
	case EventPromptError:
		if p.Error != nil {
			body = p.Error
		}
	case EventOther:
		body = struct{}{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, p.Kind)
	}
	if body == nil {
		return nil, fmt.Errorf("event %s has no body", p.Kind)
	}
	return marshalTagged(string(p.Kind), body)
}

// UnmarshalJSON implements json.Unmarshaler. Unknown tags yield an error
// wrapping ErrUnknownEventKind.
func (p *EventPayload) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	kind, ok := ParseEventKind(tag.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, tag.Type)
	}

	out := EventPayload{Kind: kind}
	var err error
	switch kind {
	case EventPromptProgress:
		out.Progress = &PromptProgress{}
		err = json.Unmarshal(data, out.Progress)
	case EventPromptCompletion:
		out.Completion = &PromptCompletion{}
		err = json.Unmarshal(data, out.Completion)
	case EventPromptError:
		out.Error = &PromptError{}
		err = json.Unmarshal(data, out.Error)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	*p = out
	return nil
}

// SessionStatus is the copy of session state attached to every event.
type SessionStatus struct {
	ID                uuid.UUID  `json:"id"`
	LLMUUID           uuid.UUID  `json:"llm_uuid"`
	UserID            uuid.UUID  `json:"user_id"`
	Started           time.Time  `json:"started"`
	LastCalled        time.Time  `json:"last_called"`
	SessionParameters Parameters `json:"session_parameters"`
}

// UnmarshalJSON implements json.Unmarshaler. Every field is required.
func (s *SessionStatus) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                *uuid.UUID  `json:"id"`
		LLMUUID           *uuid.UUID  `json:"llm_uuid"`
		UserID            *uuid.UUID  `json:"user_id"`
		Started           *time.Time  `json:"started"`
		LastCalled        *time.Time  `json:"last_called"`
		SessionParameters *Parameters `json:"session_parameters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.ID == nil:
		return missingField("session.id")
	case raw.LLMUUID == nil:
		return missingField("session.llm_uuid")
	case raw.UserID == nil:
		return missingField("session.user_id")
	case raw.Started == nil:
		return missingField("session.started")
	case raw.LastCalled == nil:
		return missingField("session.last_called")
	case raw.SessionParameters == nil:
		return missingField("session.session_parameters")
	}
	*s = SessionStatus{
		ID:                *raw.ID,
		LLMUUID:           *raw.LLMUUID,
		UserID:            *raw.UserID,
		Started:           *raw.Started,
		LastCalled:        *raw.LastCalled,
		SessionParameters: *raw.SessionParameters,
	}
	return nil
}

// LLMEvent is one event of a prompt_session_stream response.
type LLMEvent struct {
	StreamID      uuid.UUID     `json:"stream_id"`
	Timestamp     time.Time     `json:"timestamp"`
	CallTimestamp time.Time     `json:"call_timestamp"`
	Parameters    Parameters    `json:"parameters"`
	Input         string        `json:"input"`
	LLMUUID       uuid.UUID     `json:"llm_uuid"`
	Session       SessionStatus `json:"session"`
	Event         EventPayload  `json:"event"`
}

// Text returns the newly generated text for progress events and "" otherwise.
func (e LLMEvent) Text() string {
	if e.Event.Kind == EventPromptProgress && e.Event.Progress != nil {
		return e.Event.Progress.Next
	}
	return ""
}

// ParseEvent decodes one event payload. Every field must be present and well
// typed; a partially valid payload is an error.
func ParseEvent(data []byte) (LLMEvent, error) {
	var raw struct {
		StreamID      *uuid.UUID      `json:"stream_id"`
		Timestamp     *time.Time      `json:"timestamp"`
		CallTimestamp *time.Time      `json:"call_timestamp"`
		Parameters    Parameters      `json:"parameters"`
		Input         *string         `json:"input"`
		LLMUUID       *uuid.UUID      `json:"llm_uuid"`
		Session       *SessionStatus  `json:"session"`
		Event         json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LLMEvent{}, err
	}

	switch {
	case raw.StreamID == nil:
		return LLMEvent{}, missingField("stream_id")
	case raw.Timestamp == nil:
		return LLMEvent{}, missingField("timestamp")
	case raw.CallTimestamp == nil:
		return LLMEvent{}, missingField("call_timestamp")
	case raw.Parameters == nil:
		return LLMEvent{}, missingField("parameters")
	case raw.Input == nil:
		return LLMEvent{}, missingField("input")
	case raw.LLMUUID == nil:
		return LLMEvent{}, missingField("llm_uuid")
	case raw.Session == nil:
		return LLMEvent{}, missingField("session")
	case len(raw.Event) == 0:
		return LLMEvent{}, missingField("event")
	}

	var payload EventPayload
	if err := json.Unmarshal(raw.Event, &payload); err != nil {
		return LLMEvent{}, err
	}

	return LLMEvent{
		StreamID:      *raw.StreamID,
		Timestamp:     *raw.Timestamp,
		CallTimestamp: *raw.CallTimestamp,
		Parameters:    raw.Parameters,
		Input:         *raw.Input,
		LLMUUID:       *raw.LLMUUID,
		Session:       *raw.Session,
		Event:         payload,
	}, nil
}

func missingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}
