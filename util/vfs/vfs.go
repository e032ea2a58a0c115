// Package vfs provides the filesystem abstraction used by the index:
// atomically created files, read-only mapped files and an in-memory
// implementation for tests.
package vfs

import (
	"bytes"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// InputFile is a read-only file.
type InputFile interface {
	io.Reader
	io.ReaderAt
	io.Seeker
	io.Closer
}

// AtomicFile is a file that becomes visible under its final name only
// after a successful Commit.
type AtomicFile interface {
	io.Writer
	io.Closer
	Commit() error
}

// MappedFile is a read-only file mapped into memory.
type MappedFile struct {
	Data  []byte
	close func() error
}

func (m *MappedFile) Close() error {
	if m.close == nil {
		return nil
	}
	return m.close()
}

// FileSystem is a flat directory of files.
type FileSystem interface {
	Path() string
	OpenFile(name string) (InputFile, error)
	CreateAtomicFile(name string) (AtomicFile, error)
	MapFile(name string) (*MappedFile, error)
	Remove(name string) error
	ListFiles() ([]string, error)
	Close() error
}

var ErrNotDirectory = errors.New("not a directory")

type fsDir struct {
	path string
}

// OpenDir opens a directory on the filesystem, optionally creating it
// if it does not exist.
func OpenDir(path string, create bool) (FileSystem, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	if stat, err := os.Stat(path); err != nil {
		if create && os.IsNotExist(err) {
			err = os.MkdirAll(path, 0750)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	} else if !stat.IsDir() {
		return nil, ErrNotDirectory
	}

	return &fsDir{path: path}, nil
}

// CreateTempDir creates a temporary directory that is removed on Close.
func CreateTempDir() (FileSystem, error) {
	path, err := ioutil.TempDir("", "trinity")
	if err != nil {
		return nil, err
	}
	log.Printf("created new temp directory at %v", path)
	return &tempDir{fsDir{path: path}}, nil
}

type tempDir struct {
	fsDir
}

func (d *tempDir) Close() error {
	return os.RemoveAll(d.path)
}

func (d *fsDir) Path() string { return d.path }

func (d *fsDir) OpenFile(name string) (InputFile, error) {
	return os.Open(filepath.Join(d.path, name))
}

func (d *fsDir) CreateAtomicFile(name string) (AtomicFile, error) {
	return safefile.Create(filepath.Join(d.path, name), 0644)
}

func (d *fsDir) MapFile(name string) (*MappedFile, error) {
	file, err := os.Open(filepath.Join(d.path, name))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		return &MappedFile{}, nil
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map %v", name)
	}
	return &MappedFile{Data: data, close: func() error { return unix.Munmap(data) }}, nil
}

func (d *fsDir) Remove(name string) error {
	err := os.Remove(filepath.Join(d.path, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *fsDir) ListFiles() ([]string, error) {
	infos, err := ioutil.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	return names, nil
}

func (d *fsDir) Close() error { return nil }

type memDir struct {
	entries map[string][]byte
}

// CreateMemDir creates a directory that only lives in memory.
func CreateMemDir() FileSystem {
	return &memDir{entries: make(map[string][]byte)}
}

func (d *memDir) Path() string { return "" }

func (d *memDir) OpenFile(name string) (InputFile, error) {
	entry, ok := d.entries[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &memFileReader{Reader: bytes.NewReader(entry)}, nil
}

func (d *memDir) CreateAtomicFile(name string) (AtomicFile, error) {
	return &memFileWriter{dir: d, name: name}, nil
}

func (d *memDir) MapFile(name string) (*MappedFile, error) {
	entry, ok := d.entries[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &MappedFile{Data: entry}, nil
}

func (d *memDir) Remove(name string) error {
	delete(d.entries, name)
	return nil
}

func (d *memDir) ListFiles() ([]string, error) {
	names := make([]string, 0, len(d.entries))
	for name := range d.entries {
		names = append(names, name)
	}
	return names, nil
}

func (d *memDir) Close() error { return nil }

type memFileReader struct {
	*bytes.Reader
}

func (f *memFileReader) Close() error { return nil }

type memFileWriter struct {
	bytes.Buffer
	dir  *memDir
	name string
}

func (f *memFileWriter) Commit() error {
	f.dir.entries[f.name] = append([]byte(nil), f.Bytes()...)
	return nil
}

func (f *memFileWriter) Close() error { return nil }
