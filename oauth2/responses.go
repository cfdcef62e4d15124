package oauth2

// TokenResponse is the token endpoint success body for all grant types
// (RFC 6749 §5.1).
type TokenResponse struct {
	// AccessToken is either a signed JWT or an opaque reference handle,
	// depending on the client's access token style.
	AccessToken string `json:"access_token"`

	// IdToken is the OIDC identity token. Only present when the request
	// carried the openid scope.
	IdToken string `json:"id_token,omitempty"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in,omitempty"`

	// RefreshToken is an opaque rotating handle, present when offline access
	// was granted.
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope is the space separated set of granted scopes. May be narrower
	// than requested.
	Scope string `json:"scope,omitempty"`
}

// DeviceAuthorizationResponse is the device authorization endpoint success
// body (RFC 8628 §3.2).
type DeviceAuthorizationResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// Introspection is the introspection endpoint response (RFC 7662 §2.2). When
// Active is false no other field is populated.
type Introspection struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Jti       string   `json:"jti,omitempty"`
}
