package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/stream"
)

type sessionBody struct {
	auth
	UserSessionParameters api.Parameters `json:"user_session_parameters"`
}

type sessionIDBody struct {
	auth
	LLMID                 string         `json:"llm_id"`
	UserSessionParameters api.Parameters `json:"user_session_parameters"`
}

type sessionFlexBody struct {
	auth
	Filter                *api.LLMFilter     `json:"filter"`
	Preference            *api.LLMPreference `json:"preference"`
	UserSessionParameters api.Parameters     `json:"user_session_parameters"`
}

type promptBody struct {
	auth
	SessionID  string         `json:"session_id"`
	LLMUUID    string         `json:"llm_uuid"`
	Prompt     string         `json:"prompt"`
	Parameters api.Parameters `json:"parameters"`
}

type interruptBody struct {
	auth
	LLMUUID   string `json:"llm_uuid"`
	SessionID string `json:"session_id"`
}

// Session is the inference state of one LLM for one user. Prompts within a
// session share history.
type Session struct {
	ID      uuid.UUID
	LLMUUID uuid.UUID

	// Parameters and LLM are filled for sessions created through the client
	// and are zero for sessions rebound with Client.Session.
	Parameters api.Parameters
	LLM        api.LLMStatus

	client *Client
}

// Session rebinds a session created earlier.
func (c *Client) Session(sessionID, llmUUID uuid.UUID) *Session {
	return &Session{ID: sessionID, LLMUUID: llmUUID, client: c}
}

// CreateSession opens a session on the best running LLM. params are requested
// session parameters; the returned session holds the ones actually used.
// Requires perm_session.
func (c *Client) CreateSession(ctx context.Context, params api.Parameters) (*Session, error) {
	return c.createSession(ctx, "create_session", sessionBody{auth: c.auth(), UserSessionParameters: params})
}

// CreateSessionID opens a session on a specific running LLM.
func (c *Client) CreateSessionID(ctx context.Context, llmID string, params api.Parameters) (*Session, error) {
	body := sessionIDBody{auth: c.auth(), LLMID: llmID, UserSessionParameters: params}
	return c.createSession(ctx, "create_session_id", body)
}

// CreateSessionFlex opens a session on the running LLM the server picks for
// filter and pref. Either may be nil.
func (c *Client) CreateSessionFlex(ctx context.Context, filter *api.LLMFilter, pref *api.LLMPreference, params api.Parameters) (*Session, error) {
	body := sessionFlexBody{auth: c.auth(), Filter: filter, Preference: pref, UserSessionParameters: params}
	return c.createSession(ctx, "create_session_flex", body)
}

func (c *Client) createSession(ctx context.Context, op string, body any) (*Session, error) {
	var resp api.CreateSessionResponse
	if err := c.post(ctx, op, body, &resp); err != nil {
		return nil, err
	}

	id, err := parseID(op, "session_id", resp.SessionID)
	if err != nil {
		return nil, err
	}
	llmUUID, err := parseID(op, "llm_status.uuid", resp.LLMStatus.UUID)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         id,
		LLMUUID:    llmUUID,
		Parameters: resp.SessionParameters,
		LLM:        resp.LLMStatus,
		client:     c,
	}, nil
}

// Prompt runs inference on prompt and returns the event stream. Pantry adds
// no pre-prompt. params are inference parameters such as temperature; which
// ones apply depends on the LLM. Requires perm_session.
//
// The caller must Close the stream or range it to the end.
func (s *Session) Prompt(ctx context.Context, prompt string, params api.Parameters) (*stream.EventStream, error) {
	c := s.client
	return c.openStream(ctx, "prompt_session_stream", promptBody{
		auth:       c.auth(),
		SessionID:  s.ID.String(),
		LLMUUID:    s.LLMUUID.String(),
		Prompt:     prompt,
		Parameters: params,
	})
}

// Complete runs Prompt and collects the generated text.
func (s *Session) Complete(ctx context.Context, prompt string, params api.Parameters) (string, error) {
	es, err := s.Prompt(ctx, prompt, params)
	if err != nil {
		return "", err
	}
	text, err := stream.Collect(es)
	if err != nil {
		return text, fmt.Errorf("complete: %w", err)
	}
	return text, nil
}

// Interrupt stops inference in this session after the next token. Tokens
// already generated may still arrive on an open stream.
func (s *Session) Interrupt(ctx context.Context) (*api.LLMRunningStatus, error) {
	c := s.client
	var out api.LLMRunningStatus
	body := interruptBody{auth: c.auth(), LLMUUID: s.LLMUUID.String(), SessionID: s.ID.String()}
	if err := c.post(ctx, "interrupt_session", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
