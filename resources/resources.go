package resources

// ResourceType separates identity scopes (claims about the subject, carried in
// identity tokens) from API scopes (access to a protected resource).
type ResourceType string

const (
	IdentityResource ResourceType = "identity"
	APIResource      ResourceType = "api"
)

// OfflineAccessScope grants refresh tokens. It is a protocol scope, not backed
// by a registered resource.
const OfflineAccessScope = "offline_access"

// Resource is a requestable permission registered with the server.
type Resource struct {
	Name        string       `json:"name"`
	Type        ResourceType `json:"type"`
	DisplayName string       `json:"displayName,omitempty"`

	// Parameterized marks scopes of the form "name:parameter"
	// (e.g. "transaction:123"). Only parameterized scopes accept a parameter.
	Parameterized bool `json:"parameterized,omitempty"`

	// ClaimTypes are the subject claim types this resource pulls into tokens.
	ClaimTypes []string `json:"claimTypes,omitempty"`
}

// ParsedScopeValue is a raw scope token split into its name and optional
// parameter.
type ParsedScopeValue struct {
	// Raw is the original token as it appeared in the scope string.
	Raw string
	// Name is the registered scope name.
	Name string
	// Parameter is the part after the separator for parameterized scopes.
	Parameter string
}
