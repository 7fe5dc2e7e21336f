package source

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMagnet = "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=ubuntu.iso"

func TestKindOf(t *testing.T) {
	tests := []struct {
		raw  string
		want Kind
	}{
		{"https://example.com/file.bin", KindHTTP},
		{"  http://example.com/a  ", KindHTTP},
		{"https://example.com/file.TORRENT", KindTorrentURL},
		{testMagnet, KindMagnet},
		{"ftp://example.com/file", KindUnknown},
		{"notaurl", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.raw), tt.raw)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("https://example.com/file.bin"))
	assert.NoError(t, Validate("https://example.com/file.torrent"))
	assert.NoError(t, Validate(testMagnet))

	assert.True(t, errors.Is(Validate("   "), ErrEmpty))
	assert.True(t, errors.Is(Validate("notaurl"), ErrUnsupportedScheme))
	assert.True(t, errors.Is(Validate("ftp://example.com/x"), ErrUnsupportedScheme))
	assert.True(t, errors.Is(Validate("http:///path-only"), ErrMissingHost))
	assert.True(t, errors.Is(Validate("magnet:?dn=nohash"), ErrBadMagnet))

	assert.False(t, IsSupported("ftp://example.com/x"))
	assert.True(t, IsSupported(testMagnet))
}

func TestParseMagnet(t *testing.T) {
	m, err := ParseMagnet(testMagnet)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", m.InfoHash.HexString())
	assert.Equal(t, "ubuntu.iso", m.DisplayName)
}

func TestCanonicalKey(t *testing.T) {
	k1, key1 := CanonicalKey("HTTPS://Example.COM/a.bin#frag")
	k2, key2 := CanonicalKey("https://example.com/a.bin")
	assert.Equal(t, KindHTTP, k1)
	assert.Equal(t, k1, k2)
	assert.Equal(t, key2, key1)

	kind, key := CanonicalKey(testMagnet)
	assert.Equal(t, KindMagnet, kind)
	assert.Equal(t, "btih:0123456789abcdef0123456789abcdef01234567", key)
}

func TestReadLines(t *testing.T) {
	input := "http://a.example/1\n\n  # comment\n   http://b.example/2  \r\nnotaurl\n"
	lines, err := ReadLines(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example/1", "http://b.example/2", "notaurl"}, lines)
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{
		"http://a.example/1",
		"HTTP://A.example/1#x",
		"http://b.example/2",
	})
	assert.Equal(t, []string{"http://a.example/1", "http://b.example/2"}, got)
}
