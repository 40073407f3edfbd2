package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveContentKey derives a 32-byte AES key from the server-side secret and
// a holder DID. The derivation is deterministic so the same holder's content
// is always decryptable without a per-record key store; confidentiality
// depends entirely on the secret staying private.
func DeriveContentKey(secret, holderDID string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("content encryption secret is empty")
	}
	if holderDID == "" {
		return nil, fmt.Errorf("holder DID is empty")
	}

	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("unicred-content:"+holderDID))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	return key, nil
}
