// Package archive abstracts the binary container a countersigned certificate
// batch arrives in: a list of named entries with raw bytes each.
package archive

import (
	"archive/zip"
	"io"
)

// Entry is one named byte blob inside an archive.
type Entry interface {
	Name() string
	IsDir() bool
	Bytes() ([]byte, error)
}

// Reader lists the entries of an opened archive.
type Reader interface {
	Entries() []Entry
	Close() error
}

type zipEntry struct {
	file *zip.File
}

func (e *zipEntry) Name() string { return e.file.Name }

func (e *zipEntry) IsDir() bool { return e.file.FileInfo().IsDir() }

func (e *zipEntry) Bytes() ([]byte, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type zipReader struct {
	rc *zip.ReadCloser
}

// OpenZip opens a ZIP archive on disk as a Reader.
func OpenZip(path string) (Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return &zipReader{rc: rc}, nil
}

func (r *zipReader) Entries() []Entry {
	entries := make([]Entry, 0, len(r.rc.File))
	for _, f := range r.rc.File {
		entries = append(entries, &zipEntry{file: f})
	}
	return entries
}

func (r *zipReader) Close() error {
	return r.rc.Close()
}
