// Package output guards the output directory of a run and writes its
// artifacts.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kacperjurak/burstfit"
)

// LockName is the file that marks a directory as owned by a running fit.
const LockName = ".burstfit.lock"

// Target is an output directory held exclusively by one run. A fresh target
// is empty; results of an earlier run are only replaced with overwrite.
type Target struct {
	dir     string
	created bool
	// parents created by Open, deepest first
	parents []string
}

// Open claims dir for writing. The lock is taken before the emptiness check
// so that two runs can never both see an empty directory. On failure nothing
// is left behind: directories created by Open are removed again. With
// overwrite, a lock left by a process that no longer runs is taken over.
func Open(dir string, overwrite bool) (*Target, error) {
	dir = filepath.Clean(dir)
	parents := missingParents(dir)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	t := &Target{dir: dir, created: true, parents: parents}
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.created = false
		if !errors.Is(err, fs.ErrExist) {
			t.cleanup()
			return nil, fmt.Errorf("output: %w", err)
		}
		info, err := os.Stat(dir)
		if err != nil {
			t.cleanup()
			return nil, fmt.Errorf("output: %w", err)
		}
		if !info.IsDir() {
			t.cleanup()
			return nil, fmt.Errorf("%w: %s is not a directory", burstfit.ErrOutputAlreadyExists, dir)
		}
	}

	lock, err := t.createLock()
	if err != nil && errors.Is(err, fs.ErrExist) && overwrite && t.staleLock() {
		_ = os.Remove(t.lockPath())
		lock, err = t.createLock()
	}
	if err != nil {
		t.cleanup()
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s is in use by another run (remove %s if it is stale)",
				burstfit.ErrOutputAlreadyExists, dir, LockName)
		}
		return nil, fmt.Errorf("output: %w", err)
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	lock.Close()

	if !overwrite {
		used, err := t.used()
		if err != nil {
			t.Discard()
			return nil, fmt.Errorf("output: %w", err)
		}
		if used {
			t.Discard()
			return nil, fmt.Errorf("%w: %s is not empty (use --force to overwrite)", burstfit.ErrOutputAlreadyExists, dir)
		}
	}
	return t, nil
}

// missingParents lists the ancestors of dir that do not exist yet, deepest
// first.
func missingParents(dir string) []string {
	var res []string
	for p := filepath.Dir(dir); ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil || !errors.Is(err, fs.ErrNotExist) {
			return res
		}
		res = append(res, p)
		if filepath.Dir(p) == p {
			return res
		}
	}
}

func (t *Target) createLock() (*os.File, error) {
	return os.OpenFile(t.lockPath(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// staleLock reports whether the lock names a process that has exited.
// Unreadable locks are never stale.
func (t *Target) staleLock() bool {
	data, err := os.ReadFile(t.lockPath())
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return false
	}
	return !processAlive(pid)
}

func (t *Target) Dir() string { return t.dir }

// Path returns the location of the artifact name inside the target.
func (t *Target) Path(name string) string {
	return filepath.Join(t.dir, name)
}

func (t *Target) lockPath() string {
	return filepath.Join(t.dir, LockName)
}

// used reports whether the directory holds anything besides the lock.
func (t *Target) used() (bool, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name() != LockName {
			return true, nil
		}
	}
	return false, nil
}

// WriteFile atomically replaces name with whatever write produces.
func (t *Target) WriteFile(name string, write func(w io.Writer) error) error {
	dest := t.Path(name)
	tmp, err := os.CreateTemp(t.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("output: write %s: %w", name, err)
	}

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("output: write %s: %w", name, err)
	}
	_ = os.Chmod(tmpPath, 0o644)
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("output: write %s: %w", name, err)
	}
	return nil
}

// Close releases the directory. Written artifacts stay.
func (t *Target) Close() error {
	if err := os.Remove(t.lockPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("output: release lock: %w", err)
	}
	return nil
}

// Discard releases the directory and removes it, and any parents Open
// created, if nothing was written.
func (t *Target) Discard() {
	_ = t.Close()
	t.cleanup()
}

// cleanup removes the directories Open created. A directory that gained
// files is left in place.
func (t *Target) cleanup() {
	if t.created {
		_ = os.Remove(t.dir)
	}
	for _, p := range t.parents {
		if err := os.Remove(p); err != nil {
			return
		}
	}
}
