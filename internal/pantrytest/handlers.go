package pantrytest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/pantrykit/api"
)

type ctxKey int

const (
	bodyKey ctxKey = iota
	userKey
)

func withBody(ctx context.Context, body map[string]any) context.Context {
	return context.WithValue(ctx, bodyKey, body)
}

func bodyFrom(r *http.Request) map[string]any {
	body, _ := r.Context().Value(bodyKey).(map[string]any)
	return body
}

func userFrom(r *http.Request) *user {
	u, _ := r.Context().Value(userKey).(*user)
	return u
}

func str(body map[string]any, key string) string {
	v, _ := body[key].(string)
	return v
}

func obj(body map[string]any, key string) map[string]any {
	v, _ := body[key].(map[string]any)
	return v
}

// authenticate checks user_id and api_key against registered users.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := bodyFrom(r)
		s.mu.Lock()
		u, ok := s.users[str(body, "user_id")]
		s.mu.Unlock()
		if !ok || u.info.APIKey != str(body, "api_key") {
			writeText(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	name := str(bodyFrom(r), "user_name")
	if name == "" {
		writeText(w, http.StatusBadRequest, "user_name is required")
		return
	}
	writeJSON(w, http.StatusOK, s.AddUser(name, api.UserPermissions{}))
}

func (s *Server) newRequest(u *user, req api.UserRequest) *api.UserRequestStatus {
	status := &api.UserRequestStatus{
		ID:        uuid.New(),
		UserID:    uuid.MustParse(u.info.ID),
		Timestamp: time.Now().UTC(),
		Request:   req,
	}
	s.mu.Lock()
	s.requests[status.ID] = status
	s.mu.Unlock()
	return status
}

func (s *Server) handleRequestPermissions(w http.ResponseWriter, r *http.Request) {
	var perms api.UserPermissions
	if err := remarshal(obj(bodyFrom(r), "requested_permissions"), &perms); err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}
	status := s.newRequest(userFrom(r), api.UserRequest{
		Type:       api.RequestTypePermission,
		Permission: &api.PermissionRequest{RequestedPermissions: perms},
	})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRequestDownload(w http.ResponseWriter, r *http.Request) {
	// The registry entry arrives as a JSON document inside a string.
	var entry api.LLMRegistryEntry
	if err := json.Unmarshal([]byte(str(bodyFrom(r), "llm_registry_entry")), &entry); err != nil {
		writeText(w, http.StatusBadRequest, "invalid llm_registry_entry")
		return
	}
	status := s.newRequest(userFrom(r), api.UserRequest{
		Type:     api.RequestTypeDownload,
		Download: &api.DownloadRequest{LLMRegistryEntry: entry},
	})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRequestLoad(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	llmID := str(body, "llm_id")
	if llmID == "" {
		s.mu.Lock()
		l := s.matchLLM(obj(body, "filter"), obj(body, "preference"), false)
		s.mu.Unlock()
		if l == nil {
			writeText(w, http.StatusNotFound, "llm not found")
			return
		}
		llmID = l.UUID
	}
	status := s.newRequest(userFrom(r), api.UserRequest{
		Type: api.RequestTypeLoad,
		Load: &api.LoadRequest{LLMID: llmID},
	})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRequestUnload(w http.ResponseWriter, r *http.Request) {
	status := s.newRequest(userFrom(r), api.UserRequest{
		Type:   api.RequestTypeUnload,
		Unload: &api.UnloadRequest{LLMID: str(bodyFrom(r), "llm_id")},
	})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetRequestStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(str(bodyFrom(r), "request_id"))
	if err != nil {
		writeText(w, http.StatusBadRequest, "invalid request_id")
		return
	}
	s.mu.Lock()
	status, ok := s.requests[id]
	var cp api.UserRequestStatus
	if ok {
		cp = *status
	}
	s.mu.Unlock()
	if !ok {
		writeText(w, http.StatusNotFound, "request not found")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// withLLM runs fn on the LLM named by the body's llm_id, or answers 404.
func (s *Server) withLLM(w http.ResponseWriter, r *http.Request, fn func(l *api.LLMStatus) any) {
	s.mu.Lock()
	l := s.findLLM(str(bodyFrom(r), "llm_id"))
	var out any
	if l != nil {
		out = fn(l)
	}
	s.mu.Unlock()
	if l == nil {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLLMStatus(w http.ResponseWriter, r *http.Request) {
	s.withLLM(w, r, func(l *api.LLMStatus) any { return *l })
}

func (s *Server) listLLMs(running bool) []api.LLMStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.LLMStatus{}
	for _, l := range s.llms {
		if running && !l.Running {
			continue
		}
		out = append(out, *l)
	}
	return out
}

func (s *Server) handleGetRunningLLMs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listLLMs(true))
}

func (s *Server) handleGetAvailableLLMs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listLLMs(false))
}

func runningStatus(l *api.LLMStatus) api.LLMRunningStatus {
	return api.LLMRunningStatus{LLMInfo: *l, UUID: l.UUID}
}

func (s *Server) handleLoadLLM(w http.ResponseWriter, r *http.Request) {
	s.withLLM(w, r, func(l *api.LLMStatus) any {
		l.Running = true
		return runningStatus(l)
	})
}

func (s *Server) handleLoadLLMFlex(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	s.mu.Lock()
	l := s.matchLLM(obj(body, "filter"), obj(body, "preference"), false)
	var out api.LLMRunningStatus
	if l != nil {
		l.Running = true
		out = runningStatus(l)
	}
	s.mu.Unlock()
	if l == nil {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUnloadLLM(w http.ResponseWriter, r *http.Request) {
	s.withLLM(w, r, func(l *api.LLMStatus) any {
		l.Running = false
		return *l
	})
}

func (s *Server) handleDownloadLLM(w http.ResponseWriter, r *http.Request) {
	var entry api.LLMRegistryEntry
	if err := json.Unmarshal([]byte(str(bodyFrom(r), "llm_registry_entry")), &entry); err != nil {
		writeText(w, http.StatusBadRequest, "invalid llm_registry_entry")
		return
	}
	added := s.AddLLM(api.LLMStatus{
		ID:            entry.ID,
		FamilyID:      entry.FamilyID,
		Organization:  entry.Organization,
		Name:          entry.Name,
		Local:         entry.Local,
		ConnectorType: string(entry.ConnectorType),
		Config:        entry.Config,
	})
	writeJSON(w, http.StatusOK, map[string]any{"uuid": added.UUID, "status": "downloading"})
}

func bareModel(l *api.LLMStatus) api.BareModel {
	return api.BareModel{Model: *l, Path: fmt.Sprintf("/models/%s.bin", l.ID)}
}

func (s *Server) handleBareModel(w http.ResponseWriter, r *http.Request) {
	s.withLLM(w, r, func(l *api.LLMStatus) any { return bareModel(l) })
}

func (s *Server) handleBareModelFlex(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	s.mu.Lock()
	l := s.matchLLM(obj(body, "filter"), obj(body, "preference"), false)
	var out api.BareModel
	if l != nil {
		out = bareModel(l)
	}
	s.mu.Unlock()
	if l == nil {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// startSession opens a session on l. Callers hold mu.
func (s *Server) startSession(u *user, l *api.LLMStatus, params map[string]any) api.CreateSessionResponse {
	p, _ := api.ParametersFromMap(params)
	if p == nil {
		p = api.Parameters{}
	}
	sess := &session{
		id:      uuid.New(),
		llmUUID: uuid.MustParse(l.UUID),
		userID:  uuid.MustParse(u.info.ID),
		started: time.Now().UTC(),
		params:  p,
	}
	s.sessions[sess.id] = sess
	return api.CreateSessionResponse{
		SessionParameters: p,
		LLMStatus:         *l,
		SessionID:         sess.id.String(),
	}
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request, pick func() *api.LLMStatus) {
	body := bodyFrom(r)
	s.mu.Lock()
	l := pick()
	var out api.CreateSessionResponse
	if l != nil {
		out = s.startSession(userFrom(r), l, obj(body, "user_session_parameters"))
	}
	s.mu.Unlock()
	if l == nil {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.createSession(w, r, func() *api.LLMStatus { return s.matchLLM(nil, nil, true) })
}

func (s *Server) handleCreateSessionID(w http.ResponseWriter, r *http.Request) {
	s.createSession(w, r, func() *api.LLMStatus {
		l := s.findLLM(str(bodyFrom(r), "llm_id"))
		if l == nil || !l.Running {
			return nil
		}
		return l
	})
}

func (s *Server) handleCreateSessionFlex(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	s.createSession(w, r, func() *api.LLMStatus {
		return s.matchLLM(obj(body, "filter"), obj(body, "preference"), true)
	})
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lookupSession(bodyFrom(r))
	if err != nil {
		writeText(w, http.StatusNotFound, err.Error())
		return
	}
	s.mu.Lock()
	l := s.findLLM(sess.llmUUID.String())
	var out api.LLMRunningStatus
	if l != nil {
		out = runningStatus(l)
	}
	s.mu.Unlock()
	if l == nil {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePromptStream(w http.ResponseWriter, r *http.Request) {
	body := bodyFrom(r)
	sess, err := s.lookupSession(body)
	if err != nil {
		status := http.StatusNotFound
		if !errors.Is(err, errNoSession) {
			status = http.StatusBadRequest
		}
		writeText(w, status, err.Error())
		return
	}
	if str(body, "llm_uuid") != sess.llmUUID.String() {
		writeText(w, http.StatusNotFound, "llm not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeText(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	defer func() {
		select {
		case s.streamDone <- struct{}{}:
		default:
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	params, _ := api.ParametersFromMap(obj(body, "parameters"))
	sw := &StreamWriter{
		w:       w,
		flusher: flusher,
		base: api.LLMEvent{
			StreamID:      uuid.New(),
			CallTimestamp: time.Now().UTC(),
			Parameters:    params,
			Input:         str(body, "prompt"),
			LLMUUID:       sess.llmUUID,
			Session: api.SessionStatus{
				ID:                sess.id,
				LLMUUID:           sess.llmUUID,
				UserID:            sess.userID,
				Started:           sess.started,
				LastCalled:        time.Now().UTC(),
				SessionParameters: sess.params,
			},
		},
	}

	s.mu.Lock()
	fn := s.stream
	output := append([]string(nil), s.output...)
	s.mu.Unlock()

	if fn != nil {
		fn(w, r, sw)
		return
	}

	var previous string
	for _, piece := range output {
		sw.Progress(previous, piece)
		previous += piece
	}
	sw.Completion(previous)
}

func remarshal(in map[string]any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
