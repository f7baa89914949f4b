// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package kar

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4"
	"golang.org/x/exp/mmap"
)

// Open opens the kar archived from r. It will also check
// if the file is actually a kar archive, will return an error
// when file incorrect.
func Open(r io.ReaderAt) (*Archive, error) {
	magic := make([]byte, MagicLength)
	if _, err := r.ReadAt(magic, 0); err != nil || !bytes.Equal(magic, Magic[:]) {
		return nil, errors.Wrap(ErrFileFormat, "kar.Open(): magic")
	}

	headerSizeBytes := make([]byte, HeaderSizeNumberLength)
	if _, err := r.ReadAt(headerSizeBytes, MagicLength); err != nil {
		return nil, errors.Wrap(ErrFileFormat, "kar.Open(): header size")
	}

	headerSize, err := binaryToint64(headerSizeBytes)
	if err != nil || headerSize <= 0 {
		return nil, errors.Wrap(ErrFileFormat, "kar.Open(): header size")
	}

	headerBytes := make([]byte, headerSize)
	if _, err := r.ReadAt(headerBytes, MagicLength+HeaderSizeNumberLength); err != nil {
		return nil, errors.Wrapf(ErrFileFormat, "kar.Open(): header of %d bytes", headerSize)
	}

	var header Header
	if err := gobDecode(&header, headerBytes); err != nil {
		return nil, errors.Wrapf(ErrFileFormat, "kar.Open(): %v", err)
	}

	ar := &Archive{
		reader:  r,
		header:  header,
		data:    MagicLength + HeaderSizeNumberLength + headerSize,
		entries: make(map[string]IndexEntry, len(header.Index)),
	}
	for _, e := range header.Index {
		ar.entries[e.Name] = e
	}
	return ar, nil
}

// File is an archive memory mapped from disk.
type File struct {
	*Archive

	mapped *mmap.ReaderAt
}

// OpenFile memory maps the archive at path.
func OpenFile(path string) (*File, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "kar.OpenFile(%s)", path)
	}
	ar, err := Open(r)
	if err != nil {
		r.Close()
		return nil, err
	}
	return &File{Archive: ar, mapped: r}, nil
}

// Close unmaps the archive.
func (f *File) Close() error {
	return f.mapped.Close()
}

// Archive provides concurrent io for a kar file, and can provide
// an io.Reader for each file separately to perform actions on.
type Archive struct {
	reader  io.ReaderAt
	header  Header
	data    int64
	entries map[string]IndexEntry
}

// Header returns the header the archive was written with.
func (a *Archive) Header() Header {
	return a.header
}

// Names lists the files of the archive in index order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.header.Index))
	for _, e := range a.header.Index {
		names = append(names, e.Name)
	}
	return names
}

// Has reports whether the archive contains a file with a given name.
func (a *Archive) Has(name string) bool {
	_, ok := a.entries[name]
	return ok
}

// ReadAll returns the entire contents of a file with a given name
func (a *Archive) ReadAll(name string) ([]byte, error) {
	r, err := a.Open(name)
	if err != nil {
		return nil, err
	}
	data := make([]byte, r.entry.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, errors.Wrapf(err, "kar.ReadAll(%s)", name)
	}
	return data, nil
}

// Open returns a Reader for a file in the Archive
func (a *Archive) Open(name string) (*Reader, error) {
	entry, ok := a.entries[name]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "kar.Open(%s)", name)
	}
	section := io.NewSectionReader(a.reader, a.data+entry.Offset, entry.CompressedSize)
	return &Reader{
		entry:  entry,
		reader: lz4.NewReader(section),
	}, nil
}

// Reader is a reader for a single file in an Archive.
// Abstracts away the location that needs to be known.
type Reader struct {
	entry  IndexEntry
	reader io.Reader
}

// Read reads already decompressed data
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

// Size returns the decompressed size of the file.
func (r *Reader) Size() int64 {
	return r.entry.Size
}
