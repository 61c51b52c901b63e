// Package streamtest provides an in-process agent-actions feed server
// for tests and the demo mode of the CLI. Each incoming connection
// plays the next scripted segment of frames and then drops the
// connection, which lets tests exercise reconnect, duplicate delivery,
// and mid-stream interruption deterministically.
package streamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Frame is one scripted wire frame.
type Frame struct {
	Name string
	Data string
}

// JSONFrame builds a frame whose body is the JSON encoding of v.
func JSONFrame(name string, v any) Frame {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("streamtest: unmarshalable frame body: %v", err))
	}
	return Frame{Name: name, Data: string(data)}
}

// Server serves scripted segments over the agent-actions SSE endpoint.
// The n-th connection receives the n-th segment; connections beyond the
// script block until the client goes away, imitating an idle feed.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	segments [][]Frame
	next     int
	conns    int
}

// NewServer starts a Server playing the given segments.
func NewServer(segments ...[]Frame) *Server {
	s := &Server{segments: segments}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Connections returns how many stream connections have been accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/stream/agent-actions") {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("job_id") == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.conns++
	var segment []Frame
	if s.next < len(s.segments) {
		segment = s.segments[s.next]
		s.next++
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for _, f := range segment {
		writeFrame(w, f)
		flusher.Flush()
	}

	if segment == nil {
		// Script exhausted: hold the connection open like an idle feed.
		<-r.Context().Done()
		return
	}
	// Segment done: return, dropping the connection abnormally.
}

func writeFrame(w http.ResponseWriter, f Frame) {
	fmt.Fprintf(w, "event: %s\n", f.Name)
	if f.Data == "" {
		fmt.Fprint(w, "data: \n")
	} else {
		for _, line := range strings.Split(f.Data, "\n") {
			fmt.Fprintf(w, "data: %s\n", line)
		}
	}
	fmt.Fprint(w, "\n")
}
