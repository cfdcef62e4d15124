package subjects

import "time"

// Subject is the authenticated end user attached to a validated request.
type Subject struct {
	ID       string
	AuthTime time.Time
	IdP      string   // identity provider that authenticated the subject
	AMR      []string // authentication method references (pwd, mfa, ...)
	Claims   Claims
}

// IsAuthenticated reports whether a subject is present.
func (s *Subject) IsAuthenticated() bool {
	return s != nil && s.ID != ""
}

// ProfileService supplies subject claims for token issuance. Implementations
// own user storage; the core only asks for the claim types associated with the
// granted resources.
type ProfileService interface {
	GetClaims(subjectID string, requestedTypes []string) (Claims, error)

	// IsActive reports whether the subject is still allowed to receive
	// tokens (not deactivated or blocked). Consulted on refresh and
	// device-code redemption.
	IsActive(subjectID string) (bool, error)
}

// PasswordValidator verifies resource-owner credentials for the password
// grant. Implementations own credential storage and hashing policy.
type PasswordValidator interface {
	ValidateCredentials(username, password string) (*Subject, error)
}
