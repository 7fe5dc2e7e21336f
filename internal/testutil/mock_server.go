package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockFile is one resource served by a MockServer.
type MockFile struct {
	Data []byte

	// NoRange makes the server ignore Range headers and always send 200.
	NoRange bool
	// RangeProbeOnly answers the one-byte probe range but ignores every
	// other Range header.
	RangeProbeOnly bool
	// Disposition, when set, is sent as the Content-Disposition header.
	Disposition string
	// Delay is slept after every 4 KB written.
	Delay time.Duration
	// Status overrides the response with a bare status code.
	Status int
}

// MockServer serves MockFiles by path and counts requests.
type MockServer struct {
	*httptest.Server

	mu     sync.Mutex
	files  map[string]*MockFile
	ranges []string

	Requests atomic.Int64
}

func NewMockServer() *MockServer {
	m := &MockServer{files: make(map[string]*MockFile)}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// NewMockTLSServer is like NewMockServer but serves HTTPS with a
// self-signed certificate.
func NewMockTLSServer() *MockServer {
	m := &MockServer{files: make(map[string]*MockFile)}
	m.Server = httptest.NewTLSServer(http.HandlerFunc(m.handle))
	return m
}

// Add registers f under path and returns its absolute URL.
func (m *MockServer) Add(path string, f *MockFile) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	m.mu.Lock()
	m.files[path] = f
	m.mu.Unlock()
	return m.URL + path
}

// RangeRequests returns the Range headers received so far.
func (m *MockServer) RangeRequests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ranges...)
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	m.Requests.Add(1)

	m.mu.Lock()
	f, ok := m.files[r.URL.Path]
	if rng := r.Header.Get("Range"); rng != "" {
		m.ranges = append(m.ranges, rng)
	}
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	if f.Status != 0 {
		w.WriteHeader(f.Status)
		return
	}
	if f.Disposition != "" {
		w.Header().Set("Content-Disposition", f.Disposition)
	}
	w.Header().Set("Content-Type", "application/octet-stream")

	if f.NoRange {
		r.Header.Del("Range")
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, &slowReader{r: bytes.NewReader(f.Data), delay: f.Delay, w: w})
		return
	}

	if f.RangeProbeOnly && r.Header.Get("Range") != "bytes=0-0" {
		r.Header.Del("Range")
	}
	http.ServeContent(w, r, "", time.Time{}, &slowReader{r: bytes.NewReader(f.Data), delay: f.Delay, w: w})
}

// slowReader hands out at most 4 KB per Read, sleeping delay each time.
type slowReader struct {
	r     *bytes.Reader
	delay time.Duration
	w     http.ResponseWriter
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.delay > 0 {
		if len(p) > 4096 {
			p = p[:4096]
		}
		time.Sleep(s.delay)
		if fl, ok := s.w.(http.Flusher); ok {
			defer fl.Flush()
		}
	}
	return s.r.Read(p)
}

func (s *slowReader) Seek(offset int64, whence int) (int64, error) {
	return s.r.Seek(offset, whence)
}
