package content

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptedStoreRoundTrip(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	s := NewEncryptedStore("test-secret", backend)
	ctx := context.Background()

	payload := []byte(`{"credentialSubject":{"degree":"BSc Computer Science"}}`)

	ref, err := s.Put(ctx, payload, "did:iden3:holder1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "baf"), "expected a CIDv1 ref, got %q", ref)

	got, err := s.Get(ctx, ref, "did:iden3:holder1")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestEncryptedStoreWrongHolderFails(t *testing.T) {
	t.Parallel()

	s := NewEncryptedStore("test-secret", NewMemoryBackend())
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("secret transcript"), "did:iden3:holder1")
	require.NoError(t, err)

	_, err = s.Get(ctx, ref, "did:iden3:holder2")
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryptedStoreCiphertextAtRest(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	s := NewEncryptedStore("test-secret", backend)
	ctx := context.Background()

	payload := []byte("plaintext transcript data")
	ref, err := s.Put(ctx, payload, "did:iden3:holder1")
	require.NoError(t, err)

	raw, err := backend.Read(ctx, ref)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "plaintext transcript")
}

func TestEncryptedStorePinUnpin(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	s := NewEncryptedStore("test-secret", backend)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("data"), "did:iden3:holder1")
	require.NoError(t, err)

	require.NoError(t, s.Pin(ctx, ref))
	require.True(t, backend.Pinned(ref))

	require.NoError(t, s.Unpin(ctx, ref))
	require.False(t, backend.Pinned(ref))

	require.ErrorIs(t, s.Pin(ctx, "bafybogusref"), ErrNotFound)
}

func TestEncryptedStoreMissingRef(t *testing.T) {
	t.Parallel()

	s := NewEncryptedStore("test-secret", NewMemoryBackend())
	_, err := s.Get(context.Background(), "bafybogusref", "did:iden3:holder1")
	require.ErrorIs(t, err, ErrNotFound)
}
