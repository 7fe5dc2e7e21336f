package local

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vfaronov/httpheader"
)

func TestProbeServer_PartialContent_ParsesRange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-0" {
			t.Errorf("expected range probe header, got %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", "bytes 0-0/12345")
		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	res, err := probeServer(context.Background(), ts.Client(), ts.URL+"/real-name.bin", "test-agent")
	if err != nil {
		t.Fatalf("probeServer failed: %v", err)
	}
	if !res.SupportsRange || res.FileSize != 12345 || res.Filename != "real-name.bin" {
		t.Fatalf("unexpected probe result: %+v", res)
	}
	if res.ContentType != "application/zip" {
		t.Fatalf("ContentType = %q", res.ContentType)
	}
}

func TestProbeServer_OK_NoRange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "77")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte("a"), 77))
	}))
	defer ts.Close()

	res, err := probeServer(context.Background(), ts.Client(), ts.URL+"/file.txt", "test-agent")
	if err != nil {
		t.Fatalf("probeServer failed: %v", err)
	}
	if res.SupportsRange {
		t.Fatalf("expected no range support")
	}
	if res.FileSize != 77 {
		t.Fatalf("unexpected file size: %d", res.FileSize)
	}
}

func TestProbeServer_ForbiddenWithRange_FallsBackWithoutRange(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Range") == "bytes=0-0" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("range blocked"))
			return
		}
		w.Header().Set("Content-Length", "8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("fallback"))
	}))
	defer ts.Close()

	res, err := probeServer(context.Background(), ts.Client(), ts.URL+"/a.bin", "test-agent")
	if err != nil {
		t.Fatalf("probeServer failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected two calls for fallback, got %d", calls)
	}
	if res.SupportsRange || res.FileSize != 8 {
		t.Fatalf("unexpected probe result: %+v", res)
	}
}

func TestProbeServer_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	if _, err := probeServer(context.Background(), ts.Client(), ts.URL+"/missing", "test-agent"); err == nil {
		t.Fatal("expected error")
	}
}

func TestProbeServer_SendsUserAgent(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.UserAgent()
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	if _, err := probeServer(context.Background(), ts.Client(), ts.URL+"/x", "batchget-test/2"); err != nil {
		t.Fatalf("probeServer failed: %v", err)
	}
	if got != "batchget-test/2" {
		t.Fatalf("User-Agent = %q", got)
	}
}

func TestFilenameFromResponse_ContentDisposition(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpheader.SetContentDisposition(w.Header(), "attachment", "résumé 2024.pdf", nil)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	res, err := probeServer(context.Background(), ts.Client(), ts.URL+"/download?id=7", "test-agent")
	if err != nil {
		t.Fatalf("probeServer failed: %v", err)
	}
	if res.Filename != "résumé 2024.pdf" {
		t.Fatalf("Filename = %q", res.Filename)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://example.com/files/archive.tar.gz", "archive.tar.gz"},
		{"http://example.com/files/my%20file.bin?x=1", "my file.bin"},
		{"http://example.com/", ""},
		{"http://example.com", ""},
		{"http://example.com/dir/", ""},
	}
	for _, tt := range tests {
		if got := filenameFromURL(tt.url); got != tt.want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"plain.txt":          "plain.txt",
		"../../etc/passwd":   "passwd",
		`..\..\windows\evil`: "evil",
		"..":                 "",
		"  spaced.bin  ":     "spaced.bin",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	if n, ok := parseContentRangeTotal("bytes 0-0/999"); !ok || n != 999 {
		t.Fatalf("got %d, %v", n, ok)
	}
	if _, ok := parseContentRangeTotal("bytes 0-0/*"); ok {
		t.Fatal("unknown total should not parse")
	}
	if _, ok := parseContentRangeTotal(""); ok {
		t.Fatal("empty header should not parse")
	}
}

func TestNewLimiter(t *testing.T) {
	if newLimiter(0) != nil {
		t.Fatal("zero limit should be unlimited")
	}
	l := newLimiter(1024)
	if l == nil {
		t.Fatal("expected limiter")
	}
	if l.Burst() < 32*1024 {
		t.Fatalf("burst %d smaller than read buffer", l.Burst())
	}
}
