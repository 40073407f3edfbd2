package cryptox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "unicred-test-pepper")
	SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.Contains(t, hash, "$argon2id$v=19$")

	require.NoError(t, VerifyPassword("correct horse battery staple", hash))
	require.Error(t, VerifyPassword("wrong password", hash))
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	require.Error(t, VerifyPassword("anything", "not-a-phc-hash"))
	require.Error(t, VerifyPassword("anything", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"))
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	b, err := GenerateToken(TokenSize256)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, 43) // 32 bytes base64url without padding

	_, err = GenerateToken(0)
	require.Error(t, err)
}

func TestGenerateNonce(t *testing.T) {
	n, err := GenerateNonce()
	require.NoError(t, err)
	require.Len(t, n, 64) // 32 bytes hex
}

func TestDeriveContentKey(t *testing.T) {
	k1, err := DeriveContentKey("secret", "did:example:alice")
	require.NoError(t, err)
	require.Len(t, k1, 32)

	k2, err := DeriveContentKey("secret", "did:example:alice")
	require.NoError(t, err)
	require.Equal(t, k1, k2, "derivation must be deterministic")

	k3, err := DeriveContentKey("secret", "did:example:bob")
	require.NoError(t, err)
	require.NotEqual(t, k1, k3)

	_, err = DeriveContentKey("", "did:example:alice")
	require.Error(t, err)
	_, err = DeriveContentKey("secret", "")
	require.Error(t, err)
}
