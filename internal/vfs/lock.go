package vfs

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"duskftpd/internal/ftperr"
)

// DirLock is an advisory, process-wide and kernel-wide exclusive lock on
// a directory, taken before a rename or a sidecar read-modify-write
// sequence so two sessions touching the same directory don't race. The
// teacher's transfer/common.go took an equivalent lock via
// golang.org/x/sys/windows's LockFileEx; this is the Unix half of the
// same dependency family, applied with flock(2) instead.
type DirLock struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// Lock opens (without creating) and flocks the directory at realDirPath.
func Lock(realDirPath string) (*DirLock, error) {
	f, err := os.Open(realDirPath)
	if err != nil {
		return nil, ftperr.NewIOFailure(realDirPath, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, ftperr.NewIOFailure(realDirPath, err)
	}
	return &DirLock{f: f, path: realDirPath}, nil
}

// Unlock releases the flock and closes the underlying descriptor. Safe
// to call once; a second call is a no-op.
func (d *DirLock) Unlock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f == nil {
		return
	}
	unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
	d.f.Close()
	d.f = nil
}
