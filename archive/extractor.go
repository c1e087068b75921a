// Package archive opens uploaded bundles and sorts their entries into the
// configuration document and the transferable image assets.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zip"
)

var (
	// ErrCorruptArchive is returned when the container cannot be opened or
	// its entries cannot be enumerated.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrArchiveTooLarge is returned when the uncompressed payload exceeds
	// the extractor limit.
	ErrArchiveTooLarge = errors.New("archive exceeds uncompressed size limit")
)

// DefaultMaxUncompressedBytes caps the total size of extracted entries.
const DefaultMaxUncompressedBytes = 1 << 30

// Entry is one named file from a bundle.
type Entry struct {
	Name string
	Data []byte
}

// Bundle holds the extracted entries in archive enumeration order.
type Bundle struct {
	Entries []Entry
}

// Extractor reads zip bundles held in memory.
type Extractor struct {
	MaxUncompressedBytes int64
}

func NewExtractor(maxUncompressedBytes int64) *Extractor {
	if maxUncompressedBytes <= 0 {
		maxUncompressedBytes = DefaultMaxUncompressedBytes
	}
	return &Extractor{MaxUncompressedBytes: maxUncompressedBytes}
}

// Validate opens the container and decompresses every entry without keeping
// any payload, so checksum and stream errors surface before processing
// starts. It is the first step of every ingestion.
func (e *Extractor) Validate(data []byte) error {
	r, err := open(data)
	if err != nil {
		return err
	}
	remaining := e.MaxUncompressedBytes
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		n, err := drainEntry(f, remaining)
		if err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

// Extract returns every file entry of the bundle. Directory entries are
// skipped.
func (e *Extractor) Extract(data []byte) (*Bundle, error) {
	r, err := open(data)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Entries: make([]Entry, 0, len(r.File))}
	var total int64
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		payload, err := readEntry(f, e.MaxUncompressedBytes-total)
		if err != nil {
			return nil, err
		}
		total += int64(len(payload))
		bundle.Entries = append(bundle.Entries, Entry{Name: f.Name, Data: payload})
	}
	return bundle, nil
}

func open(data []byte) (*zip.Reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrCorruptArchive)
	}
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return r, nil
}

func drainEntry(f *zip.File, budget int64) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: entry %q: %v", ErrCorruptArchive, f.Name, err)
	}
	defer rc.Close()

	n, err := io.Copy(io.Discard, io.LimitReader(rc, budget+1))
	if err != nil {
		return 0, fmt.Errorf("%w: entry %q: %v", ErrCorruptArchive, f.Name, err)
	}
	if n > budget {
		return 0, fmt.Errorf("%w: entry %q", ErrArchiveTooLarge, f.Name)
	}
	return n, nil
}

func readEntry(f *zip.File, budget int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrCorruptArchive, f.Name, err)
	}
	defer rc.Close()

	// read one byte past the budget so an oversized entry is detectable
	payload, err := io.ReadAll(io.LimitReader(rc, budget+1))
	if err != nil {
		return nil, fmt.Errorf("%w: entry %q: %v", ErrCorruptArchive, f.Name, err)
	}
	if int64(len(payload)) > budget {
		return nil, ErrArchiveTooLarge
	}
	return payload, nil
}
