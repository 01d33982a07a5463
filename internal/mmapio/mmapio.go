// Package mmapio is the mmap I/O layer: it opens/creates a backing file,
// maps it read-write, grows it by ftruncate-then-remap, flushes by msync,
// and hole-punches reclaimed ranges. It is the only package in this module
// that touches raw mmap/fallocate syscalls.
//
// Growing a mapping cannot simply munmap the old one: a Reader (see
// package region) may still hold a pinned slice into it. Instead File keeps
// a reference-counted "epoch" per mapping generation. Grow installs a new
// generation and stashes the old one in a retired list; the old mapping is
// only munmap'd once its pin count drops to zero.
package mmapio

import (
	"context"
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"sync/atomic"

	retry "github.com/sethvargo/go-retry"
	"golang.org/x/sys/unix"

	"github.com/sharedcode/anydb"
)

// retryableSyscall runs fn, retrying errors anydb.ShouldRetry classifies as
// transient (EAGAIN/EINTR among them) so signal interruption or contention
// on the backing fd does not surface as a hard I/O error to the caller.
func retryableSyscall(fn func() error) error {
	return anydb.Retry(context.Background(), func(context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if anydb.ShouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// generation is one mmap'd view of a file at a particular length.
type generation struct {
	data []byte
	gen  uint64
	refs int32 // atomic
}

// File is a growable memory-mapped file with epoch-pinned reads.
type File struct {
	mu      sync.RWMutex
	f       *os.File
	path    string
	current *generation
	retired []*generation
	closed  bool
}

// Open opens or creates path, sized to at least initialSize bytes, and maps it read-write.
func Open(path string, initialSize int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, anydb.NewError(anydb.Io, err, path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, anydb.NewError(anydb.Io, err, path)
	}
	size := fi.Size()
	if size < initialSize {
		size = initialSize
	}
	if size == 0 {
		size = 1
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, anydb.NewError(anydb.Io, err, path)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, anydb.NewError(anydb.Io, err, path)
	}
	return &File{
		f:       f,
		path:    path,
		current: &generation{data: data, gen: 1},
	}, nil
}

// Len returns the current mapped length in bytes.
func (mf *File) Len() int64 {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	return int64(len(mf.current.data))
}

// Pinned is a reference-counted handle on one mapping generation. Callers
// must call Release exactly once per Acquire.
type Pinned struct {
	file *File
	gen  *generation
}

// Acquire pins the currently installed mapping generation so it stays valid
// (readable) even if a concurrent Grow installs a newer one.
func (mf *File) Acquire() *Pinned {
	mf.mu.RLock()
	g := mf.current
	atomic.AddInt32(&g.refs, 1)
	mf.mu.RUnlock()
	return &Pinned{file: mf, gen: g}
}

// Release unpins the mapping generation. Once the last pin on a retired
// (superseded) generation is released, it is munmap'd.
func (p *Pinned) Release() {
	if atomic.AddInt32(&p.gen.refs, -1) == 0 {
		p.file.reapRetired()
	}
}

// Bytes returns a borrowed slice [offset, offset+length) into the pinned mapping.
func (p *Pinned) Bytes(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(p.gen.data)) {
		return nil, anydb.NewError(anydb.Io, fmt.Errorf("range [%d,%d) out of bounds (len=%d)", offset, offset+length, len(p.gen.data)), nil)
	}
	return p.gen.data[offset : offset+length], nil
}

// Read is a convenience that acquires, slices, and releases in one call. The
// returned slice is only valid until the next Grow; prefer Acquire/Bytes/
// Release for longer-lived borrows (e.g. a region.Reader).
func (mf *File) Read(offset, length int64) ([]byte, error) {
	p := mf.Acquire()
	defer p.Release()
	return p.Bytes(offset, length)
}

// Write copies bytes into the mapping at offset. It does not durably sync.
func (mf *File) Write(offset int64, data []byte) error {
	mf.mu.RLock()
	defer mf.mu.RUnlock()
	g := mf.current
	if offset < 0 || offset+int64(len(data)) > int64(len(g.data)) {
		return anydb.NewError(anydb.Io, fmt.Errorf("write range [%d,%d) out of bounds (len=%d)", offset, offset+int64(len(data)), len(g.data)), nil)
	}
	copy(g.data[offset:], data)
	return nil
}

// Grow extends the file to newSize (a no-op if newSize <= current length),
// remapping in place and retiring the previous generation.
func (mf *File) Grow(newSize int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if newSize <= int64(len(mf.current.data)) {
		return nil
	}
	if err := mf.f.Truncate(newSize); err != nil {
		return anydb.NewError(anydb.Io, err, newSize)
	}
	data, err := unix.Mmap(int(mf.f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return anydb.NewError(anydb.Io, err, newSize)
	}
	old := mf.current
	mf.retired = append(mf.retired, old)
	mf.current = &generation{data: data, gen: old.gen + 1}
	log.Debug("mmapio: grew mapping", "path", mf.path, "old_len", len(old.data), "new_len", len(data), "gen", mf.current.gen)
	mf.reapRetiredLocked()
	return nil
}

// Sync msyncs the current mapping.
func (mf *File) Sync() error {
	mf.mu.RLock()
	data := mf.current.data
	mf.mu.RUnlock()
	if err := retryableSyscall(func() error { return unix.Msync(data, unix.MS_SYNC) }); err != nil {
		return anydb.NewError(anydb.Io, err, mf.path)
	}
	return nil
}

// Punch invokes the OS hole-punch primitive over [offset, offset+length) of
// the backing file, keeping the file's apparent size unchanged.
func (mf *File) Punch(offset, length int64) error {
	if length <= 0 {
		return nil
	}
	fd := int(mf.f.Fd())
	err := retryableSyscall(func() error {
		return unix.Fallocate(fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, offset, length)
	})
	if err != nil {
		return anydb.NewError(anydb.Io, err, []int64{offset, length})
	}
	return nil
}

// Close munmaps and closes the backing file. Any still-pinned retired
// generations are leaked intentionally (the process is exiting); the
// current generation is always unmapped.
func (mf *File) Close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if mf.closed {
		return nil
	}
	mf.closed = true
	var lastErr error
	if err := unix.Munmap(mf.current.data); err != nil {
		lastErr = anydb.NewError(anydb.Io, err, mf.path)
	}
	for _, g := range mf.retired {
		if atomic.LoadInt32(&g.refs) == 0 {
			_ = unix.Munmap(g.data)
		}
	}
	if err := mf.f.Close(); err != nil {
		lastErr = anydb.NewError(anydb.Io, err, mf.path)
	}
	return lastErr
}

func (mf *File) reapRetired() {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	mf.reapRetiredLocked()
}

func (mf *File) reapRetiredLocked() {
	kept := mf.retired[:0]
	for _, g := range mf.retired {
		if atomic.LoadInt32(&g.refs) == 0 {
			if err := unix.Munmap(g.data); err != nil {
				log.Warn("mmapio: failed to munmap retired generation", "path", mf.path, "error", err)
			}
			continue
		}
		kept = append(kept, g)
	}
	mf.retired = kept
}
