package grants

import (
	"time"

	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/subjects"
)

// AuthorizationCode is the payload of an issued authorization code. Redeemed
// exactly once at the token endpoint.
type AuthorizationCode struct {
	ClientID    string          `json:"clientId"`
	SubjectID   string          `json:"subjectId"`
	SessionID   string          `json:"sessionId,omitempty"`
	Claims      subjects.Claims `json:"claims,omitempty"`
	AuthTime    time.Time       `json:"authTime"`
	RedirectURI string          `json:"redirectUri"`
	Nonce       string          `json:"nonce,omitempty"`

	GrantedScopes []string `json:"grantedScopes"`
	// RequestedResourceIndicators preserves RFC 8707 resource parameters.
	RequestedResourceIndicators []string `json:"requestedResourceIndicators,omitempty"`

	CodeChallenge       string                `json:"codeChallenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"codeChallengeMethod,omitempty"`

	CreationTime time.Time     `json:"creationTime"`
	Lifetime     time.Duration `json:"lifetime"`
}

// Expiration is the absolute expiry computed from creation and lifetime.
func (c *AuthorizationCode) Expiration() time.Time {
	return c.CreationTime.Add(c.Lifetime)
}

// RefreshToken is the payload behind an opaque rotating refresh handle.
// FamilyID ties every descendant of an original grant together so that reuse
// of a rotated handle can invalidate the whole lineage.
type RefreshToken struct {
	ClientID   string          `json:"clientId"`
	SubjectID  string          `json:"subjectId"`
	SessionID  string          `json:"sessionId,omitempty"`
	Claims     subjects.Claims `json:"claims,omitempty"`
	AuthTime   time.Time       `json:"authTime"`
	FamilyID   string          `json:"familyId"`
	Generation int             `json:"generation"`

	GrantedScopes               []string `json:"grantedScopes"`
	RequestedResourceIndicators []string `json:"requestedResourceIndicators,omitempty"`

	CreationTime time.Time     `json:"creationTime"`
	Lifetime     time.Duration `json:"lifetime"`
}

func (r *RefreshToken) Expiration() time.Time {
	return r.CreationTime.Add(r.Lifetime)
}

// DeviceCodeStatus is the user-action side of the device flow state machine.
// Pending/Authorized/Denied are stored; Expired and AlreadyRedeemed are
// derived at poll time from expiry and consumption.
type DeviceCodeStatus string

const (
	DeviceCodePending    DeviceCodeStatus = "pending"
	DeviceCodeAuthorized DeviceCodeStatus = "authorized"
	DeviceCodeDenied     DeviceCodeStatus = "denied"
)

// DeviceCode is the payload of a device authorization grant.
type DeviceCode struct {
	ClientID  string           `json:"clientId"`
	UserCode  string           `json:"userCode"`
	Status    DeviceCodeStatus `json:"status"`
	SubjectID string           `json:"subjectId,omitempty"` // set on approval
	Claims    subjects.Claims  `json:"claims,omitempty"`
	AuthTime  time.Time        `json:"authTime,omitzero"`

	RequestedScopes []string `json:"requestedScopes"`
	GrantedScopes   []string `json:"grantedScopes,omitempty"`

	// Interval is the minimum poll spacing in seconds handed to the device.
	Interval int `json:"interval"`

	CreationTime time.Time     `json:"creationTime"`
	Lifetime     time.Duration `json:"lifetime"`
}

func (d *DeviceCode) Expiration() time.Time {
	return d.CreationTime.Add(d.Lifetime)
}

// ReferenceToken is the stored payload behind an opaque access token handle,
// redeemable server side at the introspection endpoint.
type ReferenceToken struct {
	ClientID  string          `json:"clientId"`
	SubjectID string          `json:"subjectId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Claims    subjects.Claims `json:"claims,omitempty"`
	Scopes    []string        `json:"scopes,omitempty"`
	Issuer    string          `json:"issuer"`
	Audience  []string        `json:"audience,omitempty"`

	CreationTime time.Time     `json:"creationTime"`
	Lifetime     time.Duration `json:"lifetime"`
}

func (r *ReferenceToken) Expiration() time.Time {
	return r.CreationTime.Add(r.Lifetime)
}

// ConsentRecord is a subject-to-client scope grant consulted to skip
// re-prompting. A zero Expiration means the consent does not expire.
type ConsentRecord struct {
	SubjectID    string    `json:"subjectId"`
	ClientID     string    `json:"clientId"`
	Scopes       []string  `json:"scopes"`
	CreationTime time.Time `json:"creationTime"`
	Expiration   time.Time `json:"expiration,omitzero"`
}

// CoversScopes reports whether every requested scope was previously consented.
func (c *ConsentRecord) CoversScopes(requested []string) bool {
	granted := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		granted[s] = true
	}
	for _, s := range requested {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Expired reports whether the consent has lapsed at the given time.
func (c *ConsentRecord) Expired(now time.Time) bool {
	return !c.Expiration.IsZero() && now.After(c.Expiration)
}
