package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// EncryptedStore encrypts blobs with an age X25519 key before handing them to
// the wrapped store. Stored sizes differ from plaintext sizes, so Put checks
// the declared size against the plaintext and forwards an unknown length.
type EncryptedStore struct {
	inner     BlobStore
	identity  age.Identity
	recipient age.Recipient
}

var _ BlobStore = (*EncryptedStore)(nil)

func NewEncryptedStore(inner BlobStore, identity *age.X25519Identity) *EncryptedStore {
	return &EncryptedStore{
		inner:     inner,
		identity:  identity,
		recipient: identity.Recipient(),
	}
}

// LoadIdentity parses an AGE-SECRET-KEY-1... identity from the inline value,
// or from the file when the inline value is empty.
func LoadIdentity(inline, file string) (*age.X25519Identity, error) {
	data := inline
	if data == "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading identity file: %w", err)
		}
		data = string(raw)
	}

	identities, err := age.ParseIdentities(strings.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, errors.New("no X25519 identity found")
}

func (s *EncryptedStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	pr, pw := io.Pipe()

	go func() {
		w, err := age.Encrypt(pw, s.recipient)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("creating encrypted writer: %w", err))
			return
		}
		written, err := io.Copy(w, r)
		if err != nil {
			pw.CloseWithError(fmt.Errorf("encrypting data: %w", err))
			return
		}
		// Fail before the final chunk so the inner store never sees a
		// complete ciphertext for a short body.
		if size >= 0 && written != size {
			pw.CloseWithError(fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written))
			return
		}
		pw.CloseWithError(w.Close())
	}()

	err := s.inner.Put(ctx, key, pr, -1)
	// Unblocks the encrypting goroutine if the inner store stopped reading early.
	_ = pr.Close()
	return err
}

func (s *EncryptedStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.inner.Open(ctx, key)
	if err != nil {
		return nil, err
	}

	plain, err := age.Decrypt(rc, s.identity)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return &decryptedReader{Reader: plain, closer: rc}, nil
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

type decryptedReader struct {
	io.Reader
	closer io.Closer
}

func (d *decryptedReader) Close() error {
	return d.closer.Close()
}
