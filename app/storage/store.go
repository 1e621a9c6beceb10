// Package storage holds uploaded file content. Blobs are addressed by an
// opaque key generated at upload time; metadata lives in the database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var ErrBlobNotFound = errors.New("blob not found")

// maxKeyNameLength bounds the human readable suffix of a key.
const maxKeyNameLength = 100

// BlobStore persists file content. A negative size on Put means the length is
// not known in advance; otherwise Put fails unless exactly size bytes are read.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// exactSizeReader turns a body longer or shorter than size into a read error,
// for backends that stream the body without counting it themselves.
type exactSizeReader struct {
	r    io.Reader
	size int64
	read int64
}

func (e *exactSizeReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.read += int64(n)
	if e.read > e.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got more", e.size)
	}
	if errors.Is(err, io.EOF) && e.read != e.size {
		return n, fmt.Errorf("size mismatch: expected %d bytes, got %d", e.size, e.read)
	}
	return n, err
}

// NewKey returns a date partitioned key such as
// uploads/2026/03/01/<uuid>-report.pdf. The uuid keeps keys unique when two
// uploads share a name.
func NewKey(now time.Time, name string) string {
	now = now.UTC()
	return fmt.Sprintf("uploads/%04d/%02d/%02d/%s-%s",
		now.Year(), now.Month(), now.Day(), uuid.New(), sanitizeName(name))
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	clean := strings.Trim(b.String(), ".")
	if clean == "" {
		return "file"
	}
	if len(clean) > maxKeyNameLength {
		clean = clean[len(clean)-maxKeyNameLength:]
	}
	return clean
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid storage key %q", key)
		}
	}
	return nil
}
