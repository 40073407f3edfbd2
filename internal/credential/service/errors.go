package service

import "errors"

var (
	ErrNotFound           = errors.New("not_found")
	ErrExpired            = errors.New("session_expired")
	ErrValidation         = errors.New("validation_failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrDependency         = errors.New("dependency_unavailable")

	// ErrCriticalInconsistency marks a failure after the ledger anchor
	// succeeded: the ledger and the record store now disagree and an operator
	// has to reconcile them. It is never retried automatically.
	ErrCriticalInconsistency = errors.New("critical_inconsistency")

	// ErrAlreadyCompleted is returned with the stored result when a second
	// callback arrives for a session that already reached a terminal state.
	ErrAlreadyCompleted = errors.New("already_completed")
)
