package clients

import (
	"errors"
	"time"

	"github.com/idpkit/idpkit/oauth2"
)

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (server-side apps)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (SPAs, mobile apps)
)

// SecretType identifies how a stored client secret value is encoded.
type SecretType string

const (
	SecretTypePlain  SecretType = "plain"
	SecretTypeBcrypt SecretType = "bcrypt"
	SecretTypeSHA256 SecretType = "sha256" // base64 of SHA-256 over the shared secret
)

// Secret is a client credential with an optional expiration. Expired secrets
// are skipped during validation, never deleted.
type Secret struct {
	Value       string     `json:"value"`
	Type        SecretType `json:"type"`
	Description string     `json:"description,omitempty"`
	Expiration  *time.Time `json:"expiration,omitempty"`
}

// Expired reports whether the secret is past its expiration at the given time.
func (s Secret) Expired(now time.Time) bool {
	return s.Expiration != nil && now.After(*s.Expiration)
}

// Client is the configuration of a registered relying party. Immutable during
// a request; owned by an external client store.
type Client struct {
	ID           string             `json:"id"`
	Name         string             `json:"name,omitempty"`
	Type         ClientType         `json:"type"`
	Secrets      []Secret           `json:"secrets,omitempty"`
	RedirectURIs []string           `json:"redirectURIs,omitempty"`
	GrantTypes   []oauth2.GrantType `json:"grantTypes"`
	Scopes       []string           `json:"scopes"`

	// AllowedSigningAlgorithms restricts which signing credential mints this
	// client's tokens. Empty means no restriction.
	AllowedSigningAlgorithms []string `json:"allowedSigningAlgorithms,omitempty"`

	AccessTokenStyle oauth2.AccessTokenStyle `json:"accessTokenStyle,omitempty"`

	AccessTokenLifetime   time.Duration `json:"accessTokenLifetime,omitempty"`
	IdentityTokenLifetime time.Duration `json:"identityTokenLifetime,omitempty"`
	AuthCodeLifetime      time.Duration `json:"authCodeLifetime,omitempty"`
	RefreshTokenLifetime  time.Duration `json:"refreshTokenLifetime,omitempty"`
	DeviceCodeLifetime    time.Duration `json:"deviceCodeLifetime,omitempty"`

	RequireConsent       bool          `json:"requireConsent,omitempty"`
	AllowRememberConsent bool          `json:"allowRememberConsent,omitempty"`
	ConsentLifetime      time.Duration `json:"consentLifetime,omitempty"`

	// AllowOfflineAccess permits issuing refresh tokens.
	AllowOfflineAccess bool `json:"allowOfflineAccess,omitempty"`
}

var ErrInvalidScope = errors.New("invalid scope")

// IsPublic returns true if the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// AllowsGrantType checks grant-type eligibility.
func (c *Client) AllowsGrantType(gt oauth2.GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// HasScope checks if the client is allowed a specific scope name.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// HasRedirectURI requires an exact match against the registered set. No
// prefix or wildcard matching; anything looser opens a redirect.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// ActiveSecrets returns the secrets that have not expired at the given time.
func (c *Client) ActiveSecrets(now time.Time) []Secret {
	active := make([]Secret, 0, len(c.Secrets))
	for _, s := range c.Secrets {
		if !s.Expired(now) {
			active = append(active, s)
		}
	}
	return active
}
