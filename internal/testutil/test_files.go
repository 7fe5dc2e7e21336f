package testutil

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/surge-downloader/batchget/internal/engine/types"
)

// RandomBytes returns size bytes of random content.
func RandomBytes(size int) []byte {
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return b
}

// PatternBytes returns size bytes of a repeating, position-dependent pattern
// so misplaced ranges are easy to spot.
func PatternBytes(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte((i / 7) % 251)
	}
	return b
}

// CreateTestFile writes data to dir/name and returns the path.
func CreateTestFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// CreatePartFile creates a preallocated partial download for resume tests,
// with the first downloadedSize bytes copied from data.
func CreatePartFile(dir, name string, data []byte, downloadedSize int64) (string, error) {
	path := filepath.Join(dir, name+types.IncompleteSuffix)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if err := f.Truncate(int64(len(data))); err != nil {
		return "", err
	}
	if downloadedSize > 0 {
		if _, err := f.WriteAt(data[:downloadedSize], 0); err != nil {
			return "", err
		}
	}
	return path, nil
}

// VerifyFileSize checks if a file has the expected size.
func VerifyFileSize(path string, expectedSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != expectedSize {
		return &FileSizeMismatchError{
			Path:     path,
			Expected: expectedSize,
			Actual:   info.Size(),
		}
	}
	return nil
}

// FileSizeMismatchError indicates a file size doesn't match expected.
type FileSizeMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *FileSizeMismatchError) Error() string {
	return fmt.Sprintf("file size mismatch: %s (want %d, got %d)", e.Path, e.Expected, e.Actual)
}

// VerifyFileContent checks that path holds exactly want.
func VerifyFileContent(path string, want []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(got) != len(want) {
		return &FileSizeMismatchError{Path: path, Expected: int64(len(want)), Actual: int64(len(got))}
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("content mismatch: %s", path)
	}
	return nil
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
