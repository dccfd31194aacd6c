// Package streamtest runs an in-process room stream server for tests.
package streamtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Server serves GET /chat/{roomID}/stream as server-sent events.
// Frames are pushed by the test with Send and SendRaw.
type Server struct {
	*httptest.Server

	// ConnectionAck makes every new stream start with {"type":"connection"}.
	ConnectionAck bool

	mu       sync.Mutex
	rooms    map[string]*room
	rejects  []int
	accepted map[string]int
}

type room struct {
	clients map[*client]struct{}
}

type client struct {
	frames chan string
	drop   chan struct{}
}

func NewServer(t testing.TB) *Server {
	s := &Server{
		rooms:    map[string]*room{},
		accepted: map[string]int{},
	}
	r := chi.NewRouter()
	r.Get("/chat/{roomID}/stream", s.handleStream)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the base URL clients subscribe against.
func (s *Server) Endpoint() string {
	return s.URL
}

// Close drops every stream and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	for id := range s.rooms {
		s.dropLocked(id)
	}
	s.mu.Unlock()
	s.Server.CloseClientConnections()
	s.Server.Close()
}

// RejectNext answers the next stream requests with the given statuses, in order.
func (s *Server) RejectNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects = append(s.rejects, statuses...)
}

// Send pushes one data-only event carrying payload to every stream of roomID.
func (s *Server) Send(roomID, payload string) {
	s.SendRaw(roomID, fmt.Sprintf("data: %s\n\n", payload))
}

// SendRaw writes raw event-stream text to every stream of roomID.
func (s *Server) SendRaw(roomID, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for c := range r.clients {
		c.frames <- raw
	}
}

// Drop ends every open stream of roomID.
func (s *Server) Drop(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(roomID)
}

func (s *Server) dropLocked(roomID string) {
	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for c := range r.clients {
		close(c.drop)
	}
	delete(s.rooms, roomID)
}

// Active is the number of open streams of roomID.
func (s *Server) Active(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return len(r.clients)
	}
	return 0
}

// Accepted is the number of stream requests for roomID answered with 200 so far.
func (s *Server) Accepted(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted[roomID]
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	s.mu.Lock()
	if len(s.rejects) > 0 {
		status := s.rejects[0]
		s.rejects = s.rejects[1:]
		s.mu.Unlock()
		http.Error(w, http.StatusText(status), status)
		return
	}
	c := &client{
		frames: make(chan string, 64),
		drop:   make(chan struct{}),
	}
	rm, ok := s.rooms[roomID]
	if !ok {
		rm = &room{clients: map[*client]struct{}{}}
		s.rooms[roomID] = rm
	}
	rm.clients[c] = struct{}{}
	s.accepted[roomID]++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if rm, ok := s.rooms[roomID]; ok {
			delete(rm.clients, c)
		}
	}()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if s.ConnectionAck {
		_, _ = fmt.Fprint(w, "data: {\"type\":\"connection\"}\n\n")
	}
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.drop:
			return
		case raw := <-c.frames:
			if _, err := fmt.Fprint(w, raw); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
