package symcache

import (
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Source is the backing storage of a cache. Bytes must return the same slice for the
// lifetime of the source; Close releases it and must be safe to call more than once.
type Source interface {
	Bytes() []byte
	Close() error
}

// BorrowedSource wraps a caller-owned buffer. Close is a no-op and the caller must keep the
// buffer unchanged while the cache is in use.
type BorrowedSource []byte

func (b BorrowedSource) Bytes() []byte { return b }
func (b BorrowedSource) Close() error  { return nil }

// OwnedSource holds a buffer the cache owns exclusively.
type OwnedSource struct {
	data []byte
}

// NewOwnedSource takes ownership of data.
func NewOwnedSource(data []byte) *OwnedSource {
	return &OwnedSource{data: data}
}

func (o *OwnedSource) Bytes() []byte { return o.data }

func (o *OwnedSource) Close() error {
	o.data = nil
	return nil
}

// MmapSource is a read-only shared mapping of a whole file.
type MmapSource struct {
	data []byte
	once sync.Once
	err  error
}

// Mmap maps the file at path read-only.
func Mmap(path string) (*MmapSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	size, err := fileSize(f)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		// mmap rejects empty mappings; an empty cache still has to fail header validation.
		return &MmapSource{data: []byte{}}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MmapSource{data: data}, nil
}

func (m *MmapSource) Bytes() []byte { return m.data }

// Close unmaps the file. Only the first call has an effect.
func (m *MmapSource) Close() error {
	m.once.Do(func() {
		if len(m.data) > 0 {
			m.err = unix.Munmap(m.data)
		}
		m.data = nil
	})
	return m.err
}

// ReadAll loads a whole file into an owned buffer. It is the fallback for platforms or
// filesystems without mmap support.
func ReadAll(path string) (*OwnedSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	size, err := fileSize(f)
	if err != nil {
		return nil, err
	}
	data, err := readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return NewOwnedSource(data), nil
}

var errFileTooLarge = errors.New("symcache: file too large to address")

func fileSize(f *os.File) (int, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := st.Size()
	if size < 0 || size > int64(int(^uint(0)>>1)) {
		// cannot index this file safely as []byte on this architecture.
		return 0, errFileTooLarge
	}
	return int(size), nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
