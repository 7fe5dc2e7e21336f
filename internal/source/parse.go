// Package source classifies and validates the URIs a batch is made of.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindHTTP       Kind = "http"
	KindTorrentURL Kind = "torrent"
	KindMagnet     Kind = "magnet"
)

var (
	ErrEmpty             = errors.New("empty uri")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrMissingHost       = errors.New("missing host")
	ErrBadMagnet         = errors.New("missing or invalid infohash")
)

func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func IsTorrentURL(raw string) bool {
	if !IsHTTPURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".torrent")
}

func IsMagnet(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if strings.ToLower(u.Scheme) != "magnet" {
		return false
	}
	return u.Opaque != "" || u.RawQuery != ""
}

func KindOf(raw string) Kind {
	s := Normalize(raw)
	if s == "" {
		return KindUnknown
	}
	if IsMagnet(s) {
		return KindMagnet
	}
	if IsTorrentURL(s) {
		return KindTorrentURL
	}
	if IsHTTPURL(s) {
		return KindHTTP
	}
	return KindUnknown
}

func IsSupported(raw string) bool {
	return Validate(raw) == nil
}

// Validate explains why raw cannot be downloaded, or returns nil.
func Validate(raw string) error {
	s := Normalize(raw)
	if s == "" {
		return ErrEmpty
	}
	switch KindOf(s) {
	case KindHTTP, KindTorrentURL:
		return nil
	case KindMagnet:
		_, err := ParseMagnet(s)
		return err
	}

	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return ErrMissingHost
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: no scheme", ErrUnsupportedScheme)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
}

// Magnet is the subset of a magnet link the engine needs.
type Magnet struct {
	InfoHash    metainfo.Hash
	Trackers    []string
	DisplayName string
}

func ParseMagnet(raw string) (*Magnet, error) {
	m, err := metainfo.ParseMagnetUri(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagnet, err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return nil, ErrBadMagnet
	}
	return &Magnet{
		InfoHash:    m.InfoHash,
		Trackers:    append([]string(nil), m.Trackers...),
		DisplayName: m.DisplayName,
	}, nil
}

// CanonicalKey returns a key under which two spellings of the same source
// compare equal.
func CanonicalKey(raw string) (Kind, string) {
	s := Normalize(raw)
	if s == "" {
		return KindUnknown, ""
	}
	if IsMagnet(s) {
		if m, err := ParseMagnet(s); err == nil {
			return KindMagnet, "btih:" + m.InfoHash.HexString()
		}
		return KindMagnet, strings.ToLower(s)
	}
	if IsHTTPURL(s) {
		if u, err := url.Parse(s); err == nil {
			u.Fragment = ""
			u.Scheme = strings.ToLower(u.Scheme)
			u.Host = strings.ToLower(u.Host)
			return KindOf(s), u.String()
		}
	}
	return KindUnknown, s
}

// ReadLines returns one entry per line of r, trimmed, skipping blank lines
// and lines starting with '#'.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dedupe drops later entries that share a CanonicalKey with an earlier one.
func Dedupe(uris []string) []string {
	seen := make(map[string]bool, len(uris))
	out := make([]string, 0, len(uris))
	for _, u := range uris {
		_, key := CanonicalKey(u)
		if key != "" && seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}
