package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unicred/unicred/internal/credential/domain"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/internal/gateway/identity"
	"github.com/unicred/unicred/internal/gateway/ledger"
	"github.com/unicred/unicred/internal/obs"
	"github.com/unicred/unicred/pkg/idx"
	"github.com/unicred/unicred/pkg/protocol"
	"github.com/unicred/unicred/pkg/slogx"
)

// VerifierService runs proof-based credential verification. A session's
// verdict is the AND of six checks; any check that cannot be evaluated
// fails closed, except the ledger checks which degrade open when no
// credential record is resolvable (and say so in the result errors).
type VerifierService struct {
	Store           store.Store
	Ledger          ledger.Gateway
	Engine          identity.Engine
	CallbackBaseURL string
	SessionTTL      time.Duration
}

// CreateSession validates the policy and stores a pending session together
// with the proof request the wallet will answer.
func (s *VerifierService) CreateSession(ctx context.Context, policy domain.VerificationPolicy, verifierRef *string) (domain.VerificationSession, error) {
	if policy.CredentialType == "" {
		return domain.VerificationSession{}, fmt.Errorf("%w: credentialType is required", ErrValidation)
	}
	for _, c := range policy.Constraints {
		if _, ok := domain.ConstraintOperators[c.Operator]; !ok {
			return domain.VerificationSession{}, fmt.Errorf("%w: unknown operator %q", ErrValidation, c.Operator)
		}
		if c.Field == "" {
			return domain.VerificationSession{}, fmt.Errorf("%w: constraint field is required", ErrValidation)
		}
	}

	id := string(idx.New())
	callback := s.CallbackBaseURL + "/verify/sessions/" + id + "/callback"

	constraints := make(map[string]map[string]any, len(policy.Constraints))
	for _, c := range policy.Constraints {
		field := strings.TrimPrefix(c.Field, "credentialSubject.")
		if constraints[field] == nil {
			constraints[field] = make(map[string]any)
		}
		constraints[field][c.Operator] = c.Value
	}

	env := protocol.NewProofRequest(callback, "credential verification",
		"", policy.CredentialType, policy.AllowedIssuers, constraints)
	rawReq, err := json.Marshal(env)
	if err != nil {
		return domain.VerificationSession{}, err
	}

	now := time.Now().UTC()
	sess := domain.VerificationSession{
		ID:           id,
		VerifierRef:  verifierRef,
		Policy:       policy,
		ProofRequest: rawReq,
		Status:       domain.VerificationPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl()),
	}
	if err := s.Store.Verifications().Create(ctx, sess); err != nil {
		return domain.VerificationSession{}, err
	}

	slogx.FromContext(ctx).Info("verification session created",
		"session_id", id, "credential_type", policy.CredentialType)
	return sess, nil
}

// ProofRequestView is what the QR page renders.
type ProofRequestView struct {
	Request   json.RawMessage `json:"request"`
	QRPayload string          `json:"qrPayload"`
}

func (s *VerifierService) GetProofRequest(ctx context.Context, sessionID string) (ProofRequestView, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return ProofRequestView{}, err
	}
	if sess.Expired(time.Now().UTC()) {
		return ProofRequestView{}, ErrExpired
	}

	requestURI := s.CallbackBaseURL + "/verify/sessions/" + sess.ID + "/request"
	return ProofRequestView{
		Request:   sess.ProofRequest,
		QRPayload: protocol.QRPayload(requestURI),
	}, nil
}

// HandleCallback evaluates the wallet's proof response and records the
// terminal verdict. Exactly one callback wins: a later one gets the stored
// result together with ErrAlreadyCompleted. Malformed responses still
// terminate the session, as rejected.
func (s *VerifierService) HandleCallback(ctx context.Context, sessionID string, raw []byte) (domain.VerificationResult, error) {
	l := slogx.FromContext(ctx).With("session_id", sessionID)

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	if sess.Status.Terminal() {
		if sess.Result != nil {
			return *sess.Result, ErrAlreadyCompleted
		}
		return domain.VerificationResult{}, ErrAlreadyCompleted
	}
	if sess.Expired(time.Now().UTC()) {
		return domain.VerificationResult{}, ErrExpired
	}

	result := s.evaluate(ctx, sess, raw)

	status := domain.VerificationRejected
	if result.Verified {
		status = domain.VerificationVerified
	}
	if err := s.Store.Verifications().Complete(ctx, sess.ID, status, result, raw); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			// Lost the race to a concurrent callback; return what won.
			stored, gerr := s.getSession(ctx, sessionID)
			if gerr == nil && stored.Result != nil {
				return *stored.Result, ErrAlreadyCompleted
			}
			return domain.VerificationResult{}, ErrAlreadyCompleted
		}
		return domain.VerificationResult{}, err
	}

	s.auditVerification(ctx, sess.ID, result)
	obs.RecordVerification(string(status))
	l.Info("verification completed", "verified", result.Verified, "reason", result.FailureReason)
	return result, nil
}

// evaluate computes the six-check vector. It never returns an error: any
// failure becomes a rejected result with the reason recorded.
func (s *VerifierService) evaluate(ctx context.Context, sess domain.VerificationSession, raw []byte) domain.VerificationResult {
	l := slogx.FromContext(ctx).With("session_id", sess.ID)
	now := time.Now().UTC()
	result := domain.VerificationResult{VerifiedAt: now}

	env, body, err := protocol.ParseProofResponse(raw)
	if err != nil {
		result.FailureReason = "malformed proof response"
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.HolderDID = env.From

	scope := body.Scope[0]
	if !scope.HasProofMaterial() {
		result.FailureReason = "proof material incomplete"
		return result
	}

	proofData, err := json.Marshal(scope.Proof.Proof)
	if err != nil {
		result.FailureReason = "proof material unreadable"
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	ok, err := s.Engine.VerifyProof(ctx, scope.CircuitID, scope.Proof.PubSignals, proofData)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	result.Checks.ProofValid = ok && err == nil
	if !result.Checks.ProofValid {
		// Crypto failure ends evaluation: no other check runs and nothing
		// is disclosed.
		result.FailureReason = "proof invalid"
		return result
	}

	// Disclosed attributes come verbatim from the presentation; the public
	// signals never surface claim values to the verifier.
	disclosed, presented := disclosedSubject(scope.VP)
	result.DisclosedAttributes = disclosed

	// Issuer: prefer the presented credential's issuer DID, fall back to the
	// numeric issuer id from the public signals.
	issuer := ""
	if presented != nil {
		issuer = presented.Issuer
	}
	if issuer == "" {
		issuer = protocol.ParsePubSignals(scope.Proof.PubSignals).IssuerID
	}
	result.IssuerDID = issuer
	result.Checks.IssuerAllowed = issuerAllowed(sess.Policy.AllowedIssuers, issuer)

	result.Checks.TypeMatches = presented != nil && containsType(presented.Type, sess.Policy.CredentialType)

	// Revocation and expiry need a resolvable credential record. Without one
	// the checks degrade open, flagged in the errors list.
	rec, found := s.resolveCredential(ctx, env.From, sess.Policy.CredentialType)
	if found {
		result.CredentialID = rec.ID
		validity, err := s.Ledger.IsValid(ctx, rec.ID)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("ledger check failed: %v", err))
		case validity.Valid:
			result.Checks.NotRevoked = true
			result.Checks.NotExpired = true
		case validity.Reason == "expired":
			result.Checks.NotRevoked = true
		default:
			result.Checks.NotExpired = true
			if validity.Reason != "" && validity.Reason != "revoked" {
				result.Errors = append(result.Errors, "ledger reports: "+validity.Reason)
			}
		}
	} else {
		result.Checks.NotRevoked = true
		result.Checks.NotExpired = true
		result.Errors = append(result.Errors, "credential record not resolvable; revocation and expiry not checked")
		l.Warn("verification running degraded: no credential record for holder",
			"holder_did", env.From)
	}

	satisfied, constraintErrs := evaluateConstraints(sess.Policy.Constraints, disclosed)
	result.Checks.ConstraintsSatisfied = satisfied
	result.Errors = append(result.Errors, constraintErrs...)

	result.Verified = result.Checks.All()
	if !result.Verified && result.FailureReason == "" {
		result.FailureReason = firstFailedCheck(result.Checks)
	}
	return result
}

func (s *VerifierService) Status(ctx context.Context, sessionID string) (domain.VerificationSession, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return domain.VerificationSession{}, err
	}
	if !sess.Status.Terminal() && sess.Expired(time.Now().UTC()) {
		sess.Status = domain.VerificationExpired
	}
	return sess, nil
}

func (s *VerifierService) ListByVerifier(ctx context.Context, verifierRef string, limit, offset int) ([]domain.VerificationSession, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.Verifications().ListByVerifier(ctx, verifierRef, limit, offset)
}

func (s *VerifierService) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.Store.Verifications().DeleteExpiredBefore(ctx, now)
}

func (s *VerifierService) getSession(ctx context.Context, sessionID string) (domain.VerificationSession, error) {
	sess, err := s.Store.Verifications().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VerificationSession{}, ErrNotFound
		}
		return domain.VerificationSession{}, err
	}
	return sess, nil
}

// resolveCredential finds the newest matching credential record for the
// holder, or reports that none exists.
func (s *VerifierService) resolveCredential(ctx context.Context, holderDID, credentialType string) (domain.CredentialRecord, bool) {
	if holderDID == "" {
		return domain.CredentialRecord{}, false
	}
	recs, err := s.Store.Credentials().ListByHolder(ctx, holderDID)
	if err != nil {
		return domain.CredentialRecord{}, false
	}
	for _, rec := range recs { // newest first
		if rec.CredentialType == credentialType {
			return rec, true
		}
	}
	return domain.CredentialRecord{}, false
}

func (s *VerifierService) auditVerification(ctx context.Context, sessionID string, result domain.VerificationResult) {
	err := s.Store.Audit().Append(ctx, domain.AuditEntry{
		ID:         string(idx.New()),
		EventType:  domain.AuditVerificationDone,
		EntityType: domain.EntityVerification,
		EntityID:   sessionID,
		Actor:      result.HolderDID,
		ActorType:  "holder",
		Details: map[string]any{
			"verified": result.Verified,
			"reason":   result.FailureReason,
		},
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("audit append failed", "session_id", sessionID, "error", err)
	}
}

func (s *VerifierService) ttl() time.Duration {
	if s.SessionTTL <= 0 {
		return 10 * time.Minute
	}
	return s.SessionTTL
}

// Helpers ------------------------------------------------------------------

func disclosedSubject(vp *protocol.VerifiablePresentation) (map[string]any, *protocol.PresentedCredential) {
	if vp == nil || len(vp.VerifiableCredential) == 0 {
		return map[string]any{}, nil
	}
	cred := vp.VerifiableCredential[0]
	subject := make(map[string]any, len(cred.CredentialSubject))
	for k, v := range cred.CredentialSubject {
		subject[k] = v
	}
	return subject, &cred
}

func issuerAllowed(allowed []string, issuer string) bool {
	if len(allowed) == 0 {
		return true // empty list is the permissive wildcard
	}
	for _, a := range allowed {
		if a == "*" || a == issuer {
			return true
		}
	}
	return false
}

func containsType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func evaluateConstraints(constraints []domain.PolicyConstraint, disclosed map[string]any) (bool, []string) {
	var errs []string
	satisfied := true
	for _, c := range constraints {
		field := strings.TrimPrefix(c.Field, "credentialSubject.")
		got, ok := disclosed[field]
		if !ok {
			satisfied = false
			errs = append(errs, fmt.Sprintf("constraint %s: attribute not disclosed", field))
			continue
		}
		if !evalOperator(c.Operator, got, c.Value) {
			satisfied = false
			errs = append(errs, fmt.Sprintf("constraint %s %s %v not satisfied", field, c.Operator, c.Value))
		}
	}
	return satisfied, errs
}

func evalOperator(op string, got, want any) bool {
	switch op {
	case "$eq":
		return compareEqual(got, want)
	case "$ne":
		return !compareEqual(got, want)
	case "$gt", "$gte", "$lt", "$lte":
		g, gok := toFloat(got)
		w, wok := toFloat(want)
		if !gok || !wok {
			return false
		}
		switch op {
		case "$gt":
			return g > w
		case "$gte":
			return g >= w
		case "$lt":
			return g < w
		default:
			return g <= w
		}
	case "$in", "$nin":
		list, ok := want.([]any)
		if !ok {
			return false
		}
		found := false
		for _, item := range list {
			if compareEqual(got, item) {
				found = true
				break
			}
		}
		if op == "$in" {
			return found
		}
		return !found
	default:
		return false
	}
}

func compareEqual(a, b any) bool {
	if g, gok := toFloat(a); gok {
		if w, wok := toFloat(b); wok {
			return g == w
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func firstFailedCheck(c domain.VerificationChecks) string {
	switch {
	case !c.ProofValid:
		return "proof invalid"
	case !c.IssuerAllowed:
		return "issuer not allowed"
	case !c.TypeMatches:
		return "credential type mismatch"
	case !c.NotRevoked:
		return "credential revoked"
	case !c.NotExpired:
		return "credential expired"
	case !c.ConstraintsSatisfied:
		return "constraints not satisfied"
	default:
		return ""
	}
}
