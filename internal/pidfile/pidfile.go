// Package pidfile implements the optional process id file (spec.md section
// 5): create-or-reuse, an exclusive non-blocking flock so a second instance
// started against the same file fails fast, a live-pid check against a
// stale file left by a crashed process, and removal on clean shutdown.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// File is an open, locked pid file. The zero value is not usable; obtain one
// via Create.
type File struct {
	path string
	f    *os.File
}

// Create opens (creating if necessary) and exclusively locks the pid file at
// path. If the file already exists and is held by another live process, it
// returns an error identifying that process. A stale file left behind by a
// process that no longer exists is reused silently, matching the original
// daemon's create_pidfile behaviour.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pidfile: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: %s is in use by another process: %w", path, err)
	}

	if pid, ok := readPid(f); ok && processAlive(pid) {
		f.Close()
		return nil, fmt.Errorf("pidfile: %s is in use by process %d", path, pid)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: truncate %s: %w", path, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pidfile: seek %s: %w", path, err)
	}

	return &File{path: path, f: f}, nil
}

// Write records the current process id in the file.
func (p *File) Write() error {
	if _, err := p.f.WriteString(strconv.Itoa(os.Getpid()) + "\n"); err != nil {
		return fmt.Errorf("pidfile: write %s: %w", p.path, err)
	}
	return nil
}

// Remove unlinks the pid file. It is safe to call from a signal handler path
// after the file has already been closed.
func (p *File) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove %s: %w", p.path, err)
	}
	return nil
}

// Close releases the underlying file descriptor (and its lock) without
// removing the file.
func (p *File) Close() error {
	return p.f.Close()
}

func readPid(f *os.File) (int, bool) {
	buf := make([]byte, 64)
	n, err := f.ReadAt(buf, 0)
	if n == 0 || (err != nil && n == 0) {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive reports whether pid refers to a live process, using the
// kill(pid, 0) existence check the original daemon relies on.
func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}
