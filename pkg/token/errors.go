package token

import "errors"

var (
	// ErrMalformed indicates that the token could not be parsed into a signed claims set
	ErrMalformed = errors.New("token is malformed")

	// ErrSignatureInvalid indicates that the token MAC does not match or uses a disallowed algorithm
	ErrSignatureInvalid = errors.New("invalid token signature")

	// ErrExpired indicates that the token verified but its expiry is not after the current time
	ErrExpired = errors.New("token has expired")

	// ErrMissingSubject indicates that the subject claim is missing or empty
	ErrMissingSubject = errors.New("missing subject claim")

	// ErrSubjectMismatch indicates that the subject differs from the expected principal
	ErrSubjectMismatch = errors.New("subject does not match")

	// ErrInvalidAuthLevel indicates an auth_level outside AAL1..AAL3
	ErrInvalidAuthLevel = errors.New("invalid auth level")

	// ErrInvalidLifetime indicates a token lifetime that iat/exp cannot carry exactly
	ErrInvalidLifetime = errors.New("token lifetime must be a whole number of seconds, at least one")
)

// ClaimTypeMismatch records a claim that was present with an unexpected type.
// Extraction falls back to the empty set or the default value for that claim.
type ClaimTypeMismatch struct {
	Claim string
	Got   string
}

func (m ClaimTypeMismatch) String() string {
	return m.Claim + ": unexpected " + m.Got
}
