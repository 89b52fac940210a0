package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/pantrykit/api"
	"github.com/randalmurphal/pantrykit/internal/metrics"
	"github.com/randalmurphal/pantrykit/internal/pantrytest"
	"github.com/randalmurphal/pantrykit/transport"
)

type closeTracker struct {
	io.Reader
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return nil
}

func body(s string) *closeTracker {
	return &closeTracker{Reader: strings.NewReader(s)}
}

func eventJSON(t *testing.T, payload api.EventPayload) string {
	t.Helper()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ev := api.LLMEvent{
		StreamID:      uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001"),
		Timestamp:     now,
		CallTimestamp: now,
		Parameters:    api.Parameters{},
		Input:         "who are you",
		LLMUUID:       uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000002"),
		Session: api.SessionStatus{
			ID:                uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000003"),
			LLMUUID:           uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000002"),
			UserID:            uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000004"),
			Started:           now,
			LastCalled:        now,
			SessionParameters: api.Parameters{},
		},
		Event: payload,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return string(data)
}

func progress(t *testing.T, previous, next string) string {
	return eventJSON(t, api.EventPayload{
		Kind:     api.EventPromptProgress,
		Progress: &api.PromptProgress{Previous: previous, Next: next},
	})
}

func completion(t *testing.T, previous string) string {
	return eventJSON(t, api.EventPayload{
		Kind:       api.EventPromptCompletion,
		Completion: &api.PromptCompletion{Previous: previous},
	})
}

func frame(data string) string {
	return "data: " + data + "\n\n"
}

func TestEventStream_SkipsKeepAlives(t *testing.T) {
	b := body(frame(progress(t, "", "I")) + ":\n\n" + frame(completion(t, "I")))
	s := New(b)

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, api.EventPromptProgress, ev.Event.Kind)
	assert.Equal(t, "I", ev.Text())
	assert.Equal(t, StateActive, s.State())

	ev, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, api.EventPromptCompletion, ev.Event.Kind)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateEnded, s.State())
	assert.NoError(t, s.Err())
	assert.Equal(t, 1, b.closed)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF, "ended streams stay ended")
}

func TestEventStream_DropsMalformedFrames(t *testing.T) {
	unknown := strings.Replace(progress(t, "", "x"), `"PromptProgress"`, `"PromptMystery"`, 1)

	beforeJSON := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidJSON))
	beforeUTF8 := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidUTF8))
	beforeKind := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonUnknownKind))

	s := New(body(
		frame(`{"stream_id":`) +
			frame("\xff\xfe") +
			frame(unknown) +
			frame(progress(t, "", "llama")),
	))
	defer s.Close()

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "llama", ev.Text())
	assert.Equal(t, int64(3), s.Dropped())

	assert.Equal(t, beforeJSON+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidJSON)))
	assert.Equal(t, beforeUTF8+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidUTF8)))
	assert.Equal(t, beforeKind+1, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonUnknownKind)))
}

func TestEventStream_DropsPartialEvents(t *testing.T) {
	noNext := strings.Replace(progress(t, "a", "b"), `"next":"b",`, "", 1)
	noSession := strings.Replace(progress(t, "a", "b"), `"started":`, `"begun":`, 1)
	require.NotContains(t, noNext, `"next"`)
	require.NotContains(t, noSession, `"started"`)

	before := testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidJSON))

	s := New(body(frame(noNext) + frame(noSession) + frame(completion(t, "ab"))))
	defer s.Close()

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, api.EventPromptCompletion, ev.Event.Kind)
	assert.Equal(t, int64(2), s.Dropped())
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.FramesDropped.WithLabelValues(metrics.ReasonInvalidJSON)))
}

func TestEventStream_TrailingFrameAtEOF(t *testing.T) {
	s := New(body("data: " + completion(t, "done")))

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, api.EventPromptCompletion, ev.Event.Kind)
	assert.Equal(t, "done", ev.Event.Completion.Previous)
}

func TestEventStream_ReadErrorEndsStream(t *testing.T) {
	errBoom := errors.New("connection reset")
	b := &closeTracker{Reader: io.MultiReader(
		strings.NewReader(frame(progress(t, "", "I"))),
		iotestErrReader{err: errBoom},
	)}
	s := New(b)

	_, err := s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, s.Err(), errBoom)
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, 1, b.closed)
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestEventStream_CloseIsIdempotent(t *testing.T) {
	b := body(frame(progress(t, "", "I")))
	s := New(b)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, b.closed)

	_, err := s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, s.Err())
}

func TestEventStream_AllClosesOnBreak(t *testing.T) {
	b := body(frame(progress(t, "", "I")) + frame(progress(t, "I", " am")))
	s := New(b)

	var got []string
	for ev := range s.All() {
		got = append(got, ev.Text())
		break
	}

	assert.Equal(t, []string{"I"}, got)
	assert.Equal(t, StateEnded, s.State())
	assert.Equal(t, 1, b.closed)
}

func TestEventStream_OpenGaugeTracksLifetime(t *testing.T) {
	before := testutil.ToFloat64(metrics.OpenStreams)

	s := New(body(""))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.OpenStreams))

	_ = s.Close()
	_ = s.Close()
	assert.Equal(t, before, testutil.ToFloat64(metrics.OpenStreams))
}

// session registers a user, starts a running LLM and opens a session on it.
func session(t *testing.T, srv *pantrytest.Server, d *transport.Dispatcher) map[string]any {
	t.Helper()

	u := srv.AddUser("streamer", api.UserPermissions{Session: true})
	llm := srv.AddLLM(api.LLMStatus{ID: "llama", Running: true})

	req, err := json.Marshal(map[string]any{"user_id": u.ID, "api_key": u.APIKey})
	require.NoError(t, err)
	resp, err := d.Dispatch(context.Background(), transport.NewRequest(http.MethodPost, "/create_session", req))
	require.NoError(t, err)

	var created api.CreateSessionResponse
	require.NoError(t, transport.DecodeJSON(resp, "create_session", &created))

	return map[string]any{
		"user_id":    u.ID,
		"api_key":    u.APIKey,
		"session_id": created.SessionID,
		"llm_uuid":   llm.UUID,
		"prompt":     "who are you",
		"parameters": map[string]any{},
	}
}

func TestOpen_DefaultOutput(t *testing.T) {
	srv := pantrytest.New(t)
	d := transport.NewDispatcher(transport.WithSocketPath(""), transport.WithBaseURL(srv.StartTCP()))
	defer d.Close()

	req, err := json.Marshal(session(t, srv, d))
	require.NoError(t, err)

	s, err := Open(context.Background(), d, "/prompt_session_stream", req)
	require.NoError(t, err)

	text, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "I am a llama", text)
	assert.Equal(t, StateEnded, s.State())
}

func TestOpen_StatusError(t *testing.T) {
	srv := pantrytest.New(t)
	d := transport.NewDispatcher(transport.WithSocketPath(""), transport.WithBaseURL(srv.StartTCP()))
	defer d.Close()

	fields := session(t, srv, d)
	fields["llm_uuid"] = uuid.NewString()
	req, err := json.Marshal(fields)
	require.NoError(t, err)

	s, err := Open(context.Background(), d, "/prompt_session_stream", req)
	assert.Nil(t, s)

	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "llm not found", apiErr.Message)
}

func TestOpen_CloseReleasesConnection(t *testing.T) {
	srv := pantrytest.New(t)
	socket := srv.StartUnix()
	d := transport.NewDispatcher(transport.WithSocketPath(socket), transport.WithBaseURL(""))
	defer d.Close()

	srv.SetStream(func(w http.ResponseWriter, r *http.Request, sw *pantrytest.StreamWriter) {
		sw.Progress("", "I")
		<-r.Context().Done()
	})

	req, err := json.Marshal(session(t, srv, d))
	require.NoError(t, err)

	s, err := Open(context.Background(), d, "/prompt_session_stream", req)
	require.NoError(t, err)

	ev, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "I", ev.Text())
	require.NoError(t, s.Close())

	select {
	case <-srv.StreamDone():
	case <-time.After(5 * time.Second):
		t.Fatal("server handler still running after Close")
	}
}

func TestOpen_ContextCancelEndsStream(t *testing.T) {
	srv := pantrytest.New(t)
	d := transport.NewDispatcher(transport.WithSocketPath(""), transport.WithBaseURL(srv.StartTCP()))
	defer d.Close()

	srv.SetStream(func(w http.ResponseWriter, r *http.Request, sw *pantrytest.StreamWriter) {
		sw.Progress("", "I")
		<-r.Context().Done()
	})

	req, err := json.Marshal(session(t, srv, d))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, d, "/prompt_session_stream", req)
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)

	cancel()
	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Error(t, s.Err())
	assert.Equal(t, StateEnded, s.State())
}
