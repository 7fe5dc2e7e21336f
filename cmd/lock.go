package cmd

import (
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/surge-downloader/batchget/internal/config"
)

var (
	instanceLock *flock.Flock
	lockMu       sync.Mutex
)

// AcquireLock takes the per-user instance lock without blocking. It reports
// false when another batchget process holds it.
func AcquireLock() (bool, error) {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock != nil && instanceLock.Locked() {
		return true, nil
	}
	if err := config.EnsureDirs(); err != nil {
		return false, err
	}

	l := flock.New(filepath.Join(config.GetAppDir(), "batchget.lock"))
	locked, err := l.TryLock()
	if err != nil {
		return false, err
	}
	if locked {
		instanceLock = l
	}
	return locked, nil
}

// ReleaseLock releases the instance lock if this process holds it.
func ReleaseLock() error {
	lockMu.Lock()
	defer lockMu.Unlock()

	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
