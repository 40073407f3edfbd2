package identity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSchemaRef = "https://schemas.example.edu/degree-v1.json"

func validClaims() DegreeClaims {
	return DegreeClaims{
		University:     "Example University",
		Degree:         "Bachelor of Science",
		Major:          "Computer Science",
		GraduationYear: 2023,
	}
}

func validProofData() []byte {
	raw, _ := json.Marshal(map[string]any{
		"pi_a": []string{"1", "2", "1"},
		"pi_b": [][]string{{"1", "2"}, {"3", "4"}, {"1", "0"}},
		"pi_c": []string{"5", "6", "1"},
	})
	return raw
}

func validPubSignals() []string {
	signals := make([]string, 77)
	for i := range signals {
		signals[i] = "0"
	}
	signals[1] = "21803003425" // userID
	signals[4] = "27752032170" // issuerID
	return signals
}

func TestValidateSchema(t *testing.T) {
	t.Parallel()

	e := NewClaimsEngine("did:iden3:issuer", testSchemaRef)

	t.Run("accepts complete claims", func(t *testing.T) {
		require.NoError(t, e.ValidateSchema(validClaims()))
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		for _, mutate := range []func(*DegreeClaims){
			func(c *DegreeClaims) { c.University = "" },
			func(c *DegreeClaims) { c.Degree = "" },
			func(c *DegreeClaims) { c.Major = "" },
		} {
			claims := validClaims()
			mutate(&claims)
			require.ErrorIs(t, e.ValidateSchema(claims), ErrInvalidClaims)
		}
	})

	t.Run("rejects out-of-range graduation year", func(t *testing.T) {
		claims := validClaims()
		claims.GraduationYear = 1850
		require.ErrorIs(t, e.ValidateSchema(claims), ErrInvalidClaims)

		claims.GraduationYear = time.Now().Year() + 50
		require.ErrorIs(t, e.ValidateSchema(claims), ErrInvalidClaims)
	})
}

func TestIssueCredential(t *testing.T) {
	t.Parallel()

	e := NewClaimsEngine("did:iden3:issuer", testSchemaRef)
	ctx := context.Background()

	issued, err := e.IssueCredential(ctx, "did:iden3:holder1", validClaims(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, issued.CredentialHash)
	require.Len(t, issued.CredentialHash, 64)
	require.NotZero(t, issued.RevocationNonce)
	require.Nil(t, issued.ExpiresAt)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(issued.Document, &doc))
	require.Equal(t, "did:iden3:issuer", doc["issuer"])
	require.Contains(t, doc["type"], "DegreeCredential")

	subject, ok := doc["credentialSubject"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "did:iden3:holder1", subject["id"])
	require.Equal(t, "Computer Science", subject["major"])

	t.Run("ttl sets expiration", func(t *testing.T) {
		issued, err := e.IssueCredential(ctx, "did:iden3:holder1", validClaims(), time.Hour)
		require.NoError(t, err)
		require.NotNil(t, issued.ExpiresAt)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(issued.Document, &doc))
		require.Contains(t, doc, "expirationDate")
	})

	t.Run("missing holder rejected", func(t *testing.T) {
		_, err := e.IssueCredential(ctx, "", validClaims(), 0)
		require.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("invalid claims rejected before any work", func(t *testing.T) {
		bad := validClaims()
		bad.University = ""
		_, err := e.IssueCredential(ctx, "did:iden3:holder1", bad, 0)
		require.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestFoldIntoCommitment(t *testing.T) {
	t.Parallel()

	e := NewClaimsEngine("did:iden3:issuer", testSchemaRef)
	ctx := context.Background()

	c1, err := e.FoldIntoCommitment(ctx, "hash-one")
	require.NoError(t, err)
	require.NotEmpty(t, c1.OldRoot)
	require.NotEqual(t, c1.OldRoot, c1.NewRoot)

	// Root history is linear: the next fold starts where the last ended.
	c2, err := e.FoldIntoCommitment(ctx, "hash-two")
	require.NoError(t, err)
	require.Equal(t, c1.NewRoot, c2.OldRoot)

	_, err = e.FoldIntoCommitment(ctx, "")
	require.Error(t, err)

	require.NoError(t, e.PublishStateTransition(ctx, c2))
	require.Error(t, e.PublishStateTransition(ctx, Commitment{}))
}

func TestVerifyProof(t *testing.T) {
	t.Parallel()

	e := NewClaimsEngine("did:iden3:issuer", testSchemaRef)
	ctx := context.Background()

	t.Run("valid envelope passes", func(t *testing.T) {
		ok, err := e.VerifyProof(ctx, "credentialAtomicQuerySigV2", validPubSignals(), validProofData())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("unsupported circuit errors", func(t *testing.T) {
		_, err := e.VerifyProof(ctx, "someOtherCircuit", validPubSignals(), validProofData())
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("empty signals fail", func(t *testing.T) {
		ok, err := e.VerifyProof(ctx, "credentialAtomicQuerySigV2", nil, validProofData())
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("truncated proof fails", func(t *testing.T) {
		raw, _ := json.Marshal(map[string]any{
			"pi_a": []string{"1"},
			"pi_b": [][]string{{"1", "2"}},
			"pi_c": []string{"5"},
		})
		ok, err := e.VerifyProof(ctx, "credentialAtomicQuerySigV2", validPubSignals(), raw)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("malformed json errors", func(t *testing.T) {
		_, err := e.VerifyProof(ctx, "credentialAtomicQuerySigV2", validPubSignals(), []byte("{not json"))
		require.ErrorIs(t, err, ErrInvalidProof)
	})

	t.Run("signals missing identities fail", func(t *testing.T) {
		signals := validPubSignals()
		signals[1] = ""
		ok, err := e.VerifyProof(ctx, "credentialAtomicQuerySigV2", signals, validProofData())
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestExtractDisclosedClaims(t *testing.T) {
	t.Parallel()

	e := NewClaimsEngine("did:iden3:issuer", testSchemaRef)
	claims := e.ExtractDisclosedClaims(validPubSignals())
	require.Equal(t, "21803003425", claims["userID"])
	require.Equal(t, "27752032170", claims["issuerID"])
}
