package testutil

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// LockingFs wraps an afero.Fs and fails opens and renames targeting locked
// paths, the way a share violation does when another workstation holds the
// file. Every attempt against a locked or unlocked path is counted.
type LockingFs struct {
	afero.Fs

	lockErr error

	mu       sync.Mutex
	locked   map[string]bool
	attempts map[string]int
}

// NewLockingFs wraps base; locked paths fail with lockErr.
func NewLockingFs(base afero.Fs, lockErr error) *LockingFs {
	return &LockingFs{
		Fs:       base,
		lockErr:  lockErr,
		locked:   make(map[string]bool),
		attempts: make(map[string]int),
	}
}

// Lock makes subsequent operations on path fail.
func (l *LockingFs) Lock(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked[filepath.Clean(path)] = true
}

// Unlock releases path.
func (l *LockingFs) Unlock(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, filepath.Clean(path))
}

// Attempts returns how many times path was opened or renamed onto.
func (l *LockingFs) Attempts(path string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts[filepath.Clean(path)]
}

func (l *LockingFs) check(op, path string) error {
	path = filepath.Clean(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts[path]++
	if l.locked[path] {
		return &os.PathError{Op: op, Path: path, Err: l.lockErr}
	}
	return nil
}

// Open implements afero.Fs.
func (l *LockingFs) Open(name string) (afero.File, error) {
	if err := l.check("open", name); err != nil {
		return nil, err
	}
	return l.Fs.Open(name)
}

// OpenFile implements afero.Fs.
func (l *LockingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if err := l.check("open", name); err != nil {
		return nil, err
	}
	return l.Fs.OpenFile(name, flag, perm)
}

// Create implements afero.Fs.
func (l *LockingFs) Create(name string) (afero.File, error) {
	if err := l.check("open", name); err != nil {
		return nil, err
	}
	return l.Fs.Create(name)
}

// Rename implements afero.Fs. The destination decides the lock.
func (l *LockingFs) Rename(oldname, newname string) error {
	if err := l.check("rename", newname); err != nil {
		return err
	}
	return l.Fs.Rename(oldname, newname)
}

// Name implements afero.Fs.
func (l *LockingFs) Name() string { return "LockingFs" }
