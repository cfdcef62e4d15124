package oauth2

import "strings"

// ResponseType represents the OAuth 2.0 / OIDC response type requested at the
// authorization endpoint. Combined types ("code id_token") are space separated
// and order-insensitive per the OIDC multiple-response-type spec.
type ResponseType string

const (
	CodeResponseType         ResponseType = "code"
	TokenResponseType        ResponseType = "token"
	IDTokenResponseType      ResponseType = "id_token"
	IDTokenTokenResponseType ResponseType = "id_token token"
	CodeIDTokenResponseType  ResponseType = "code id_token"
	CodeTokenResponseType    ResponseType = "code token"
	CodeIDTokenTokenRespType ResponseType = "code id_token token"
)

// Normalize sorts the space-separated parts of a response type into the
// canonical ordering used by the compatibility table.
func (rt ResponseType) Normalize() ResponseType {
	parts := strings.Fields(string(rt))
	has := map[string]bool{}
	for _, p := range parts {
		has[p] = true
	}
	ordered := make([]string, 0, 3)
	for _, p := range []string{"code", "id_token", "token"} {
		if has[p] {
			ordered = append(ordered, p)
		}
	}
	if len(ordered) != len(parts) {
		return rt // unknown component, leave as-is so validation rejects it
	}
	return ResponseType(strings.Join(ordered, " "))
}

// IncludesIDToken reports whether the response type requests an identity token
// directly from the authorization endpoint.
func (rt ResponseType) IncludesIDToken() bool {
	for _, p := range strings.Fields(string(rt)) {
		if p == "id_token" {
			return true
		}
	}
	return false
}

// IncludesCode reports whether the response type includes an authorization code.
func (rt ResponseType) IncludesCode() bool {
	for _, p := range strings.Fields(string(rt)) {
		if p == "code" {
			return true
		}
	}
	return false
}

// ResponseModeType denotes how authorization response parameters are returned
// to the client redirect URI.
type ResponseModeType string

const (
	QueryResponseMode    ResponseModeType = "query"
	FragmentResponseMode ResponseModeType = "fragment"
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType represents the PKCE code challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 means code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypePlain sends the verifier as the challenge. Weaker than
	// S256; accepted for legacy clients only.
	CodeMethodTypePlain CodeMethodType = "plain"
)

// GrantType represents the OAuth 2.0 grant type presented at the token endpoint.
type GrantType string

const (
	AuthorizationCodeGrant GrantType = "authorization_code"
	ClientCredentialsGrant GrantType = "client_credentials"
	RefreshTokenGrant      GrantType = "refresh_token"
	PasswordGrant          GrantType = "password"
	DeviceCodeGrant        GrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// ImplicitGrant never reaches the token endpoint; it gates response types
	// that issue tokens directly from the authorization endpoint.
	ImplicitGrant GrantType = "implicit"
)

// PromptType constrains the interactive behavior of the authorization endpoint.
type PromptType string

const (
	PromptNone          PromptType = "none"
	PromptLogin         PromptType = "login"
	PromptConsent       PromptType = "consent"
	PromptSelectAccount PromptType = "select_account"
)

// DisplayType is a hint for how the authorization UI should be rendered.
type DisplayType string

const (
	DisplayPage  DisplayType = "page"
	DisplayPopup DisplayType = "popup"
	DisplayTouch DisplayType = "touch"
	DisplayWap   DisplayType = "wap"
)

// TokenType discriminates minted token kinds.
type TokenType string

const (
	AccessTokenType   TokenType = "access_token"
	IdentityTokenType TokenType = "id_token"
	RefreshTokenType  TokenType = "refresh_token"
)

// AccessTokenStyle selects between self-contained signed tokens and opaque
// reference tokens redeemed server side.
type AccessTokenStyle string

const (
	JwtAccessToken       AccessTokenStyle = "jwt"
	ReferenceAccessToken AccessTokenStyle = "reference"
)

// responseTypeModes is the fixed response type / response mode compatibility
// table. Any response type that can carry a token in the response forbids the
// query mode, since query parameters leak through logs and referrers.
var responseTypeModes = map[ResponseType][]ResponseModeType{
	CodeResponseType:         {QueryResponseMode, FragmentResponseMode, FormPostResponseMode},
	TokenResponseType:        {FragmentResponseMode, FormPostResponseMode},
	IDTokenResponseType:      {FragmentResponseMode, FormPostResponseMode},
	IDTokenTokenResponseType: {FragmentResponseMode, FormPostResponseMode},
	CodeIDTokenResponseType:  {FragmentResponseMode, FormPostResponseMode},
	CodeTokenResponseType:    {FragmentResponseMode, FormPostResponseMode},
	CodeIDTokenTokenRespType: {FragmentResponseMode, FormPostResponseMode},
}

// DefaultResponseMode returns the mode used when the client does not request
// one, or false if the response type is unknown.
func DefaultResponseMode(rt ResponseType) (ResponseModeType, bool) {
	modes, ok := responseTypeModes[rt.Normalize()]
	if !ok {
		return "", false
	}
	return modes[0], true
}

// ResponseModeAllowed reports whether the mode is compatible with the response
// type according to the fixed table.
func ResponseModeAllowed(rt ResponseType, mode ResponseModeType) bool {
	modes, ok := responseTypeModes[rt.Normalize()]
	if !ok {
		return false
	}
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}
