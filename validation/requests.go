// Package validation implements the protocol state machines: authorize
// request validation, interaction decisions, token request validation per
// grant type, and the device flow.
package validation

import (
	"net/url"
	"time"

	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/idpkit/idpkit/subjects"
)

// ValidatedAuthorizeRequest is the canonical post-validation representation of
// an authorize request. Constructed once; treated as immutable afterwards
// except for claims appended by custom validators.
type ValidatedAuthorizeRequest struct {
	Client    *clients.Client
	Resources *resources.Validated

	ResponseType oauth2.ResponseType
	ResponseMode oauth2.ResponseModeType
	RedirectURI  string
	Scope        string
	State        string
	Nonce        string

	Prompt    oauth2.PromptType
	Display   oauth2.DisplayType
	MaxAge    *time.Duration
	ACRValues []string
	LoginHint string
	UILocales string

	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeMethodType

	// Subject is set when an authenticated user is attached to the request.
	Subject *subjects.Subject

	// Raw preserves the original parameters, including unknown and duplicate
	// ones, for audit. Unknown parameters never affect validation.
	Raw url.Values
}

// ValidatedTokenRequest is the canonical post-validation representation of a
// token request before grant dispatch.
type ValidatedTokenRequest struct {
	Client    *clients.Client
	GrantType oauth2.GrantType
	Raw       url.Values
}

// GrantValidationResult is the outcome of a successful grant validation:
// the resolved subject and claims plus the granted scopes, which may be
// narrower than requested.
type GrantValidationResult struct {
	Client    *clients.Client
	GrantType oauth2.GrantType
	Subject   *subjects.Subject

	GrantedScopes []string
	OfflineAccess bool

	SessionID string
	Nonce     string

	// Refresh rotation lineage. Empty family means a fresh grant.
	RefreshFamilyID   string
	RefreshGeneration int
}

// HasScope reports whether a scope name was granted.
func (r *GrantValidationResult) HasScope(name string) bool {
	for _, s := range r.GrantedScopes {
		if s == name {
			return true
		}
	}
	return false
}
