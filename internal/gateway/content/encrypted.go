package content

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/unicred/unicred/pkg/cryptox"
)

// EncryptedStore wraps a blob backend with per-holder AES-256-GCM. The
// content ref is computed over the ciphertext, so the ref changes whenever
// the nonce does; refs are identifiers, not content hashes of the plaintext.
type EncryptedStore struct {
	secret  string
	backend Backend
}

// Backend is the raw blob layer underneath the encryption. The in-memory
// implementation below serves tests and single-node deployments; an IPFS
// HTTP client slots in the same way.
type Backend interface {
	Write(ctx context.Context, ref string, blob []byte) error
	Read(ctx context.Context, ref string) ([]byte, error)
	Pin(ctx context.Context, ref string) error
	Unpin(ctx context.Context, ref string) error
}

func NewEncryptedStore(secret string, backend Backend) *EncryptedStore {
	return &EncryptedStore{secret: secret, backend: backend}
}

func (s *EncryptedStore) Put(ctx context.Context, payload []byte, holderDID string) (string, error) {
	gcm, err := s.cipherFor(holderDID)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("content: nonce: %w", err)
	}

	// Nonce is prepended so Get needs nothing but the blob itself.
	sealed := gcm.Seal(nonce, nonce, payload, []byte(holderDID))

	ref, err := computeRef(sealed)
	if err != nil {
		return "", err
	}
	if err := s.backend.Write(ctx, ref, sealed); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *EncryptedStore) Get(ctx context.Context, ref, holderDID string) ([]byte, error) {
	sealed, err := s.backend.Read(ctx, ref)
	if err != nil {
		return nil, err
	}

	gcm, err := s.cipherFor(holderDID)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, ErrDecrypt
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(holderDID))
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func (s *EncryptedStore) Pin(ctx context.Context, ref string) error { return s.backend.Pin(ctx, ref) }
func (s *EncryptedStore) Unpin(ctx context.Context, ref string) error {
	return s.backend.Unpin(ctx, ref)
}

func (s *EncryptedStore) cipherFor(holderDID string) (cipher.AEAD, error) {
	key, err := cryptox.DeriveContentKey(s.secret, holderDID)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// computeRef builds a CIDv1 (raw codec, sha2-256) over the sealed blob.
func computeRef(blob []byte) (string, error) {
	mh, err := multihash.Sum(blob, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("content: multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}

// MemoryBackend keeps blobs in a map. Pin state is tracked so tests can
// assert pin/unpin wiring.
type MemoryBackend struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	pinned map[string]bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		blobs:  make(map[string][]byte),
		pinned: make(map[string]bool),
	}
}

func (b *MemoryBackend) Write(ctx context.Context, ref string, blob []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[ref] = append([]byte(nil), blob...)
	return nil
}

func (b *MemoryBackend) Read(ctx context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob, ok := b.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (b *MemoryBackend) Pin(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.blobs[ref]; !ok {
		return ErrNotFound
	}
	b.pinned[ref] = true
	return nil
}

func (b *MemoryBackend) Unpin(ctx context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pinned, ref)
	return nil
}

// Pinned reports pin state for tests.
func (b *MemoryBackend) Pinned(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pinned[ref]
}
