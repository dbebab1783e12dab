package core

import "errors"

// Sentinel errors for the authentication and anti-abuse pipeline. Handlers
// translate these into the uniform response envelope via respondFailure;
// the raw error text never reaches the wire for wrapped causes.
var (
	// Credential codec failures. Verify distinguishes the three kinds so the
	// token gate can report a specific message for each.
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	// ErrSigningFailure indicates broken key material. Fatal, never expected
	// during normal operation.
	ErrSigningFailure = errors.New("token signing failure")

	// Identity resolution failures.
	ErrIdentityNotFound = errors.New("identity not found")
	ErrAccountDisabled  = errors.New("account disabled")
	ErrForbidden        = errors.New("insufficient privileges")

	// Business-type lookup must fail loudly on unknown names.
	ErrUnknownBusinessType = errors.New("unknown business type")

	// Challenge service failures.
	ErrTooFrequent       = errors.New("challenge requested too frequently")
	ErrChallengeExpired  = errors.New("challenge expired or missing")
	ErrChallengeMismatch = errors.New("challenge code mismatch")

	// Notification dispatch failures.
	ErrRecipientNotRegistered = errors.New("recipient not registered")
	ErrDispatchFailed         = errors.New("mail dispatch failed")

	// ErrStoreUnavailable wraps transport errors from the shared store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
