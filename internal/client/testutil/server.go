// Package testutil provides an in-process fake of the poll backend: the HTTP
// API routed with chi and the realtime websocket channel. Tests point the
// client at it to exercise the real transport code.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/livepoll/internal/client/models"
	"github.com/dmitrijs2005/livepoll/internal/common"
)

// Interceptor runs before every API handler. Returning true means it wrote
// the response itself and the handler is skipped.
type Interceptor func(w http.ResponseWriter, r *http.Request) bool

type storedResponse struct {
	status int
	body   []byte
}

type user struct {
	email    string
	password string
}

type Server struct {
	ts     *httptest.Server
	secret []byte

	mu          sync.Mutex
	polls       map[string]*models.Poll
	order       []string
	users       map[string]user
	voters      map[string]map[string]bool
	idempotent  map[string]storedResponse
	hits        map[string]int
	seq         int
	intercept   Interceptor
	tokenTTL    time.Duration
	realtimeOff bool

	upgrader websocket.Upgrader
	conns    map[*peer]struct{}
}

type peer struct {
	conn  *websocket.Conn
	wmu   sync.Mutex
	rooms map[string]bool
}

func (p *peer) send(event string, data any) {
	frame, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{event, data})
	if err != nil {
		return
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = p.conn.WriteMessage(websocket.TextMessage, frame)
}

// NewServer starts the fake backend and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		secret:     []byte("test-secret"),
		polls:      map[string]*models.Poll{},
		users:      map[string]user{},
		voters:     map[string]map[string]bool{},
		idempotent: map[string]storedResponse{},
		hits:       map[string]int{},
		tokenTTL:   time.Hour,
		conns:      map[*peer]struct{}{},
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(s.count)
		r.Get("/polls", s.listPolls)
		r.Post("/polls", s.idempotently(s.createPoll))
		r.Get("/polls/{id}", s.getPoll)
		r.Delete("/polls/{id}", s.deletePoll)
		r.Post("/polls/{id}/vote", s.idempotently(s.vote))
		r.Get("/polls/{id}/results", s.results)
		r.Put("/polls/{id}/toggle-active", s.toggle)
		r.Put("/polls/{id}/timing", s.timing)
		r.Post("/users/register", s.register)
		r.Post("/users/login", s.login)
	})
	r.Get("/realtime", s.realtime)

	s.ts = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Close() {
	s.DropConnections()
	s.ts.Close()
}

func (s *Server) APIURL() string { return s.ts.URL + "/api" }

func (s *Server) RealtimeURL() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/realtime"
}

// SetInterceptor installs fn in front of every API handler; nil removes it.
func (s *Server) SetInterceptor(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intercept = fn
}

// SetTokenTTL controls the expiry of tokens issued by login.
func (s *Server) SetTokenTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = d
}

// SetRealtimeDown makes websocket upgrades fail with 503 while down is true.
func (s *Server) SetRealtimeDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.realtimeOff = down
}

// Hits returns how many requests reached "METHOD /path" (path as sent).
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) PollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.polls)
}

// SeedPoll stores p as if it had been created on the server.
func (s *Server) SeedPoll(p models.Poll) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Results == nil {
		p.Results = append([]models.Option(nil), p.Options...)
	}
	cp := p
	s.polls[p.ID] = &cp
	s.order = append(s.order, p.ID)
}

func (s *Server) Poll(id string) (models.Poll, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return models.Poll{}, false
	}
	return *p, true
}

// AddUser registers a user directly.
func (s *Server) AddUser(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = user{password: password}
}

// IssueToken signs a token for username valid for ttl.
func (s *Server) IssueToken(username string, ttl time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// CastVote records a vote from another client and pushes the new results.
func (s *Server) CastVote(pollID, optionID, username string) error {
	s.mu.Lock()
	results, err := s.applyVote(pollID, optionID, username)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.Broadcast(pollID, "resultsUpdated", map[string]any{"pollId": pollID, "results": results})
	return nil
}

// RoomSize reports how many websocket peers joined pollID.
func (s *Server) RoomSize(pollID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p := range s.conns {
		if p.rooms[pollID] {
			n++
		}
	}
	return n
}

// Connections reports the number of open websocket peers.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends a frame to every peer in room, or to everyone when room
// is empty.
func (s *Server) Broadcast(room, event string, data any) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		if room == "" || p.rooms[room] {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()
	for _, p := range targets {
		p.send(event, data)
	}
}

// SendRaw writes a raw text frame to every peer.
func (s *Server) SendRaw(frame string) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		targets = append(targets, p)
	}
	s.mu.Unlock()
	for _, p := range targets {
		p.wmu.Lock()
		_ = p.conn.WriteMessage(websocket.TextMessage, []byte(frame))
		p.wmu.Unlock()
	}
}

// DropConnections closes every websocket peer from the server side.
func (s *Server) DropConnections() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		peers = append(peers, p)
	}
	s.conns = map[*peer]struct{}{}
	s.mu.Unlock()
	for _, p := range peers {
		_ = p.conn.Close()
	}
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api")]++
		fn := s.intercept
		s.mu.Unlock()
		if fn != nil && fn(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// idempotently replays the first response stored under an Idempotency-Key.
func (s *Server) idempotently(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(common.IdempotencyKeyHeaderName)
		if key == "" {
			h(w, r)
			return
		}
		s.mu.Lock()
		stored, ok := s.idempotent[key]
		s.mu.Unlock()
		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(stored.status)
			_, _ = w.Write(stored.body)
			return
		}
		rec := httptest.NewRecorder()
		h(rec, r)
		s.mu.Lock()
		s.idempotent[key] = storedResponse{status: rec.Code, body: rec.Body.Bytes()}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.Code)
		_, _ = w.Write(rec.Body.Bytes())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorBody{Error: msg})
}

func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *Server) authUser(r *http.Request) (string, bool) {
	h := r.Header.Get(common.AuthorizationHeaderName)
	raw, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", false
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) listPolls(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]models.Poll, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.polls[id]; ok {
			out = append(out, *p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPoll(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Poll(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) createPoll(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	var d models.PollDraft
	if err := decode(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(d.Question) == "" || len(d.Options) < models.MinOptions {
		writeError(w, http.StatusBadRequest, "Question and at least 2 options are required")
		return
	}

	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("poll-%d", s.seq)
	options := make([]models.Option, len(d.Options))
	for i, text := range d.Options {
		options[i] = models.Option{ID: fmt.Sprintf("%s-opt-%d", id, i+1), Text: text}
	}
	p := &models.Poll{
		ID:          id,
		Question:    d.Question,
		Options:     options,
		Results:     append([]models.Option(nil), options...),
		CreatedBy:   d.CreatedBy,
		CreatedAt:   time.Now().UTC(),
		IsActive:    true,
		StartAt:     d.StartAt,
		ActiveUntil: d.ActiveUntil,
	}
	s.polls[id] = p
	s.order = append(s.order, id)
	created := *p
	s.mu.Unlock()

	s.Broadcast("", "pollCreated", created)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) applyVote(pollID, optionID, username string) ([]models.Option, error) {
	p, ok := s.polls[pollID]
	if !ok {
		return nil, common.ErrNotFound
	}
	if !p.HasOption(optionID) {
		return nil, common.ErrBadRequest
	}
	if s.voters[pollID] == nil {
		s.voters[pollID] = map[string]bool{}
	}
	if username != "" && s.voters[pollID][username] {
		return nil, common.ErrConflict
	}
	s.voters[pollID][username] = true
	for i := range p.Results {
		if p.Results[i].ID == optionID {
			p.Results[i].Votes++
		}
	}
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			p.Options[i].Votes++
		}
	}
	return append([]models.Option(nil), p.Results...), nil
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	pollID := chi.URLParam(r, "id")
	var req models.VoteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if u, ok := s.authUser(r); ok {
		req.Username = u
	}

	s.mu.Lock()
	results, err := s.applyVote(pollID, req.OptionID, req.Username)
	s.mu.Unlock()

	switch err {
	case nil:
	case common.ErrNotFound:
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	case common.ErrConflict:
		writeError(w, http.StatusConflict, "You have already voted on this poll")
		return
	default:
		writeError(w, http.StatusBadRequest, "Invalid option")
		return
	}

	s.Broadcast(pollID, "resultsUpdated", map[string]any{"pollId": pollID, "results": results})
	writeJSON(w, http.StatusOK, models.VoteResponse{Results: results})
}

func (s *Server) results(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Poll(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, p.Results)
}

func (s *Server) deletePoll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.polls[id]
	delete(s.polls, id)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Poll deleted"})
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	p, ok := s.polls[id]
	var active bool
	if ok {
		p.IsActive = !p.IsActive
		active = p.IsActive
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, models.ToggleResponse{IsActive: active})
}

func (s *Server) timing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var sch models.Schedule
	if err := decode(r, &sch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	p, ok := s.polls[id]
	var out models.Poll
	if ok {
		p.StartAt = sch.StartAt
		p.ActiveUntil = sch.ActiveUntil
		out = *p
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Poll not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := decode(r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	s.mu.Lock()
	_, exists := s.users[req.Username]
	if !exists {
		s.users[req.Username] = user{email: req.Email, password: req.Password}
	}
	s.mu.Unlock()
	if exists {
		writeError(w, http.StatusConflict, "Username already taken")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	u, ok := s.users[req.Username]
	ttl := s.tokenTTL
	s.mu.Unlock()
	if !ok || u.password != req.Password {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResponse{
		Token:    s.IssueToken(req.Username, ttl),
		Username: req.Username,
	})
}

func (s *Server) realtime(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	off := s.realtimeOff
	s.mu.Unlock()
	if off {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	p := &peer{conn: conn, rooms: map[string]bool{}}
	s.mu.Lock()
	s.conns[p] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, p)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		var pollID string
		if err := json.Unmarshal(frame.Data, &pollID); err != nil {
			continue
		}
		s.mu.Lock()
		switch frame.Event {
		case "joinPoll":
			p.rooms[pollID] = true
		case "leavePoll":
			delete(p.rooms, pollID)
		}
		s.mu.Unlock()
	}
}
