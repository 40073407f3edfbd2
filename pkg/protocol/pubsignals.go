package protocol

import "strconv"

// Positional layout of the credentialAtomicQuerySigV2 public signals. The
// offsets are fixed by the circuit family and must not drift: wallets and
// verifiers agree on them out of band. If the deployment ever moves to a
// different circuit this table changes in lockstep.
const (
	sigMerklized          = 0
	sigUserID             = 1
	sigIssuerAuthState    = 3
	sigIssuerID           = 4
	sigClaimSchema        = 5
	sigSlotIndex          = 6
	sigOperator           = 7
	sigValueStart         = 8
	sigValueEnd           = 72 // exclusive
	sigTimestamp          = 72
	sigRevocationChecked  = 73
	sigClaimPathKey       = 74
	sigClaimPathNotExists = 75
	sigRequestID          = 76
)

// PubSignals is the decoded view of a proof's public signals.
type PubSignals struct {
	Merklized          bool
	UserID             string
	IssuerAuthState    string
	IssuerID           string
	ClaimSchema        string
	SlotIndex          int
	Operator           int
	Values             []string
	Timestamp          string
	RevocationChecked  bool
	ClaimPathKey       string
	ClaimPathNotExists bool
	RequestID          string
}

// ParsePubSignals decodes whatever prefix of the layout the signal slice
// covers. Short slices yield partially filled results rather than errors;
// callers decide which fields they need.
func ParsePubSignals(signals []string) PubSignals {
	var out PubSignals
	get := func(i int) string {
		if i < len(signals) {
			return signals[i]
		}
		return ""
	}

	out.Merklized = get(sigMerklized) == "1"
	out.UserID = get(sigUserID)
	out.IssuerAuthState = get(sigIssuerAuthState)
	out.IssuerID = get(sigIssuerID)
	out.ClaimSchema = get(sigClaimSchema)
	if v, err := strconv.Atoi(get(sigSlotIndex)); err == nil {
		out.SlotIndex = v
	}
	if v, err := strconv.Atoi(get(sigOperator)); err == nil {
		out.Operator = v
	}
	if len(signals) >= sigValueEnd {
		out.Values = append([]string(nil), signals[sigValueStart:sigValueEnd]...)
	}
	out.Timestamp = get(sigTimestamp)
	out.RevocationChecked = get(sigRevocationChecked) == "1"
	out.ClaimPathKey = get(sigClaimPathKey)
	out.ClaimPathNotExists = get(sigClaimPathNotExists) == "1"
	out.RequestID = get(sigRequestID)
	return out
}

// ExtractDisclosedClaims returns the public-signal fields as a generic map,
// the shape downstream consumers record alongside a verification result.
func ExtractDisclosedClaims(signals []string) map[string]any {
	claims := make(map[string]any)
	if len(signals) == 0 {
		return claims
	}
	ps := ParsePubSignals(signals)
	claims["merklized"] = ps.Merklized
	if ps.UserID != "" {
		claims["userID"] = ps.UserID
	}
	if ps.IssuerID != "" {
		claims["issuerID"] = ps.IssuerID
	}
	if ps.ClaimSchema != "" {
		claims["claimSchema"] = ps.ClaimSchema
	}
	claims["slotIndex"] = ps.SlotIndex
	claims["operator"] = ps.Operator
	if len(ps.Values) > 0 {
		claims["value"] = ps.Values
	}
	if ps.Timestamp != "" {
		claims["timestamp"] = ps.Timestamp
	}
	if ps.ClaimPathKey != "" {
		claims["claimPathKey"] = ps.ClaimPathKey
	}
	if ps.RequestID != "" {
		claims["requestID"] = ps.RequestID
	}
	return claims
}
