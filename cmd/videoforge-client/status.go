package main

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/videoforge/videoforge/internal/uploadclient"
)

// statusServer is an opt-in local debug page (--serve-status) a long
// running upload can be watched through without tailing stdout, using
// gorilla/mux rather than pulling in a second HTTP framework.
type statusServer struct {
	mu   sync.RWMutex
	last uploadclient.Progress
}

func newStatusServer() *statusServer {
	return &statusServer{}
}

func (s *statusServer) update(p uploadclient.Progress) {
	s.mu.Lock()
	s.last = p
	s.mu.Unlock()
}

func (s *statusServer) ListenAndServe(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return http.ListenAndServe(addr, r)
}

func (s *statusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	p := s.last
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}
