// Package pantrytest runs an in-memory pantry server for tests. The same
// router can be served on a unix socket and on TCP so both dispatch channels
// can be exercised.
package pantrytest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
)

// Listener labels recorded on each Call.
const (
	ListenerUnix = "unix"
	ListenerTCP  = "tcp"
)

// Call is one request received by the server.
type Call struct {
	Listener    string
	Method      string
	Path        string
	ContentType string
	Body        map[string]any
}

// StreamFunc writes a prompt_session_stream response. It is called after the
// event-stream headers have been flushed.
type StreamFunc func(w http.ResponseWriter, r *http.Request, s *StreamWriter)

type user struct {
	info api.UserInfo
}

type session struct {
	id      uuid.UUID
	llmUUID uuid.UUID
	userID  uuid.UUID
	started time.Time
	params  api.Parameters
}

// Server is a fake pantry server.
type Server struct {
	t      testing.TB
	router chi.Router

	mu        sync.Mutex
	calls     []Call
	users     map[string]*user
	llms      []*api.LLMStatus
	requests  map[uuid.UUID]*api.UserRequestStatus
	sessions  map[uuid.UUID]*session
	overrides map[string]http.HandlerFunc
	stream    StreamFunc
	output    []string

	streamDone chan struct{}
}

// New creates a Server. Call StartUnix and/or StartTCP to serve it.
func New(t testing.TB) *Server {
	s := &Server{
		t:          t,
		users:      make(map[string]*user),
		requests:   make(map[uuid.UUID]*api.UserRequestStatus),
		sessions:   make(map[uuid.UUID]*session),
		overrides:  make(map[string]http.HandlerFunc),
		output:     []string{"I", " am", " a", " llama"},
		streamDone: make(chan struct{}, 16),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/register_user", s.handleRegister)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/request_permissions", s.handleRequestPermissions)
		r.Post("/request_download", s.handleRequestDownload)
		r.Post("/request_load", s.handleRequestLoad)
		r.Post("/request_unload", s.handleRequestUnload)
		r.Post("/get_request_status", s.handleGetRequestStatus)
		r.Post("/get_llm_status", s.handleGetLLMStatus)
		r.Post("/get_running_llms", s.handleGetRunningLLMs)
		r.Post("/get_available_llms", s.handleGetAvailableLLMs)
		r.Post("/load_llm", s.handleLoadLLM)
		r.Post("/load_llm_flex", s.handleLoadLLMFlex)
		r.Post("/unload_llm", s.handleUnloadLLM)
		r.Post("/download_llm", s.handleDownloadLLM)
		r.Post("/bare_model", s.handleBareModel)
		r.Post("/bare_model_flex", s.handleBareModelFlex)
		r.Post("/create_session", s.handleCreateSession)
		r.Post("/create_session_id", s.handleCreateSessionID)
		r.Post("/create_session_flex", s.handleCreateSessionFlex)
		r.Post("/prompt_session_stream", s.handlePromptStream)
		r.Post("/interrupt_session", s.handleInterrupt)
	})
	return r
}

// StartUnix serves on a fresh unix socket and returns its path. The socket
// lives in a short temp dir to stay under the platform path limit.
func (s *Server) StartUnix() string {
	s.t.Helper()

	dir, err := os.MkdirTemp("", "pt")
	if err != nil {
		s.t.Fatalf("create socket dir: %v", err)
	}
	path := filepath.Join(dir, "pantry.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		_ = os.RemoveAll(dir)
		s.t.Fatalf("listen on %s: %v", path, err)
	}

	srv := &http.Server{Handler: s.label(ListenerUnix)}
	go func() { _ = srv.Serve(ln) }()

	s.t.Cleanup(func() {
		_ = srv.Close()
		_ = os.RemoveAll(dir)
	})
	return path
}

// StartTCP serves on a loopback port and returns the base URL.
func (s *Server) StartTCP() string {
	s.t.Helper()

	srv := httptest.NewServer(s.label(ListenerTCP))
	s.t.Cleanup(srv.Close)
	return srv.URL
}

// label records every request under the given listener name before routing.
func (s *Server) label(listener string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeText(w, http.StatusBadRequest, "unreadable body")
			return
		}

		var fields map[string]any
		if len(body) > 0 {
			if err := json.Unmarshal(body, &fields); err != nil {
				writeText(w, http.StatusBadRequest, "invalid json")
				return
			}
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{
			Listener:    listener,
			Method:      r.Method,
			Path:        r.URL.Path,
			ContentType: r.Header.Get("Content-Type"),
			Body:        fields,
		})
		override := s.overrides[r.URL.Path]
		s.mu.Unlock()

		r = r.WithContext(withBody(r.Context(), fields))
		if override != nil {
			override(w, r)
			return
		}
		s.router.ServeHTTP(w, r)
	})
}

// Calls returns every request received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the requests received for path.
func (s *Server) CallsTo(path string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Handle replaces the handler for path. Authentication is skipped.
func (s *Server) Handle(path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[path] = h
}

// SetStream replaces how prompt_session_stream responds once the session
// has been checked.
func (s *Server) SetStream(fn StreamFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = fn
}

// SetOutput sets the pieces the default stream emits as progress events.
func (s *Server) SetOutput(pieces ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output = append([]string(nil), pieces...)
}

// StreamDone receives once per finished prompt_session_stream handler,
// including handlers that ended because the client went away.
func (s *Server) StreamDone() <-chan struct{} {
	return s.streamDone
}

// AddUser registers a user directly and returns its credentials.
func (s *Server) AddUser(name string, perms api.UserPermissions) api.UserInfo {
	info := api.UserInfo{
		ID:              uuid.NewString(),
		Name:            name,
		APIKey:          uuid.NewString(),
		UserPermissions: perms,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[info.ID] = &user{info: info}
	return info
}

// AddLLM adds a downloaded LLM. A missing UUID is generated.
func (s *Server) AddLLM(status api.LLMStatus) api.LLMStatus {
	if status.UUID == "" {
		status.UUID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := status
	s.llms = append(s.llms, &cp)
	return status
}

// CompleteRequest marks a user request accepted and complete.
func (s *Server) CompleteRequest(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.requests[id]; ok {
		req.Accepted = true
		req.Complete = true
	}
}

// Requests returns the stored user requests.
func (s *Server) Requests() []api.UserRequestStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.UserRequestStatus, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, *r)
	}
	return out
}

// findLLM matches id against UUIDs first, then registry ids. Callers hold mu.
func (s *Server) findLLM(id string) *api.LLMStatus {
	for _, l := range s.llms {
		if l.UUID == id {
			return l
		}
	}
	for _, l := range s.llms {
		if l.ID == id {
			return l
		}
	}
	return nil
}

// matchLLM returns the first LLM passing filter, preferring ones that match
// the preference. Callers hold mu.
func (s *Server) matchLLM(filter, pref map[string]any, mustRun bool) *api.LLMStatus {
	var candidates []*api.LLMStatus
	for _, l := range s.llms {
		if mustRun && !l.Running {
			continue
		}
		if !passes(l, filter) {
			continue
		}
		candidates = append(candidates, l)
	}
	for _, l := range candidates {
		if passes(l, pref) && len(pref) > 0 {
			return l
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func passes(l *api.LLMStatus, f map[string]any) bool {
	if f == nil {
		return true
	}
	if v, ok := f["llm_uuid"].(string); ok && v != l.UUID {
		return false
	}
	if v, ok := f["llm_id"].(string); ok && v != l.ID {
		return false
	}
	if v, ok := f["family_id"].(string); ok && v != l.FamilyID {
		return false
	}
	if v, ok := f["local"].(bool); ok && v != l.Local {
		return false
	}
	if caps, ok := f["minimum_capabilities"].([]any); ok {
		for _, c := range caps {
			m, _ := c.(map[string]any)
			name, _ := m["capability"].(string)
			want, _ := m["value"].(float64)
			if float64(l.Capabilities[api.CapabilityType(name)]) < want {
				return false
			}
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeText answers with a plain body, as pantry does for errors.
func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}

var errNoSession = errors.New("session not found")

func (s *Server) lookupSession(body map[string]any) (*session, error) {
	id, err := uuid.Parse(str(body, "session_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid session_id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errNoSession
	}
	return sess, nil
}
