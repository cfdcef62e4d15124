package validation

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/rs/zerolog"
)

const (
	// RFC 7636 bounds for code_challenge and code_verifier.
	pkceMinLength = 43
	pkceMaxLength = 128
)

// AuthorizeRequestValidator validates authorization endpoint parameters
// against client configuration. Failures before the redirect URI is proven
// trustworthy are page errors; everything after is redirectable.
type AuthorizeRequestValidator struct {
	clients   clients.Repo
	resources *resources.Validator
	logger    zerolog.Logger
}

func NewAuthorizeRequestValidator(clientRepo clients.Repo, resourceValidator *resources.Validator, logger zerolog.Logger) *AuthorizeRequestValidator {
	return &AuthorizeRequestValidator{
		clients:   clientRepo,
		resources: resourceValidator,
		logger:    logger,
	}
}

// Validate produces a canonical validated request or a tagged protocol error.
func (v *AuthorizeRequestValidator) Validate(params url.Values) (*ValidatedAuthorizeRequest, *oauth2.Error) {
	return v.validate(params, true)
}

func (v *AuthorizeRequestValidator) validate(params url.Values, allowRequestObject bool) (*ValidatedAuthorizeRequest, *oauth2.Error) {
	req := &ValidatedAuthorizeRequest{Raw: params}

	// Client and redirect URI come first: until both check out, no error may
	// be sent to the redirect target.
	clientID := params.Get("client_id")
	if clientID == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "client_id is missing")
	}
	client, err := v.clients.Get(clientID)
	if err != nil {
		v.logger.Debug().Str("client_id", clientID).Msg("unknown client")
		return nil, oauth2.NewError(oauth2.ErrUnauthorizedClient, "unknown client")
	}
	req.Client = client

	redirectURI := params.Get("redirect_uri")
	if redirectURI == "" || !client.HasRedirectURI(redirectURI) {
		v.logger.Debug().Str("client_id", clientID).Str("redirect_uri", redirectURI).Msg("redirect uri not registered")
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "invalid redirect_uri")
	}
	req.RedirectURI = redirectURI
	req.State = params.Get("state")

	// The redirect target is trusted from here on.
	redirectable := func(code oauth2.ErrorCode, description string) *oauth2.Error {
		return oauth2.NewRedirectableError(code, description, req.State)
	}

	if requestObject := params.Get("request"); requestObject != "" {
		if !allowRequestObject {
			return nil, redirectable(oauth2.ErrInvalidRequest, "nested request object")
		}
		merged, roErr := v.mergeRequestObject(client, params, requestObject)
		if roErr != nil {
			return nil, roErr
		}
		return v.validate(merged, false)
	}

	responseType := oauth2.ResponseType(params.Get("response_type")).Normalize()
	defaultMode, known := oauth2.DefaultResponseMode(responseType)
	if !known {
		return nil, redirectable(oauth2.ErrUnsupportedResponse, "unsupported response_type")
	}
	req.ResponseType = responseType

	if gtErr := checkResponseTypeEligibility(client, responseType); gtErr != nil {
		return nil, redirectable(gtErr.Code, gtErr.Description)
	}

	responseMode := oauth2.ResponseModeType(params.Get("response_mode"))
	if responseMode == "" {
		responseMode = defaultMode
	} else if !oauth2.ResponseModeAllowed(responseType, responseMode) {
		return nil, redirectable(oauth2.ErrInvalidRequest, "response_mode not allowed for response_type")
	}
	req.ResponseMode = responseMode

	validated, scopeErr := v.resources.ParseAndValidate(client, params.Get("scope"))
	if scopeErr != nil {
		return nil, redirectable(oauth2.ErrInvalidScope, scopeErr.Error())
	}
	req.Resources = validated
	req.Scope = validated.ScopeString()

	req.Nonce = params.Get("nonce")
	if responseType.IncludesIDToken() && req.Nonce == "" {
		return nil, redirectable(oauth2.ErrInvalidRequest, "nonce required when an identity token is requested")
	}

	if maxAge := params.Get("max_age"); maxAge != "" {
		seconds, err := strconv.Atoi(maxAge)
		if err != nil || seconds < 0 {
			return nil, redirectable(oauth2.ErrInvalidRequest, "invalid max_age")
		}
		d := time.Duration(seconds) * time.Second
		req.MaxAge = &d
	}

	if prompt := params.Get("prompt"); prompt != "" {
		switch p := oauth2.PromptType(prompt); p {
		case oauth2.PromptNone, oauth2.PromptLogin, oauth2.PromptConsent, oauth2.PromptSelectAccount:
			req.Prompt = p
		default:
			return nil, redirectable(oauth2.ErrInvalidRequest, "invalid prompt")
		}
	}

	if display := params.Get("display"); display != "" {
		switch d := oauth2.DisplayType(display); d {
		case oauth2.DisplayPage, oauth2.DisplayPopup, oauth2.DisplayTouch, oauth2.DisplayWap:
			req.Display = d
		default:
			return nil, redirectable(oauth2.ErrInvalidRequest, "invalid display")
		}
	}

	req.ACRValues = strings.Fields(params.Get("acr_values"))
	req.LoginHint = params.Get("login_hint")
	req.UILocales = params.Get("ui_locales")

	if pkceErr := v.validatePKCE(client, params, req); pkceErr != nil {
		return nil, redirectable(pkceErr.Code, pkceErr.Description)
	}

	return req, nil
}

func checkResponseTypeEligibility(client *clients.Client, rt oauth2.ResponseType) *oauth2.Error {
	if rt.IncludesCode() && !client.AllowsGrantType(oauth2.AuthorizationCodeGrant) {
		return oauth2.NewError(oauth2.ErrUnauthorizedClient, "client not allowed authorization_code")
	}
	needsImplicit := false
	for _, p := range strings.Fields(string(rt)) {
		if p == "token" || p == "id_token" {
			needsImplicit = true
		}
	}
	if needsImplicit && !client.AllowsGrantType(oauth2.ImplicitGrant) {
		return oauth2.NewError(oauth2.ErrUnauthorizedClient, "client not allowed implicit")
	}
	return nil
}

func (v *AuthorizeRequestValidator) validatePKCE(client *clients.Client, params url.Values, req *ValidatedAuthorizeRequest) *oauth2.Error {
	challenge := params.Get("code_challenge")
	method := params.Get("code_challenge_method")

	if challenge == "" && method == "" {
		if client.IsPublic() && req.ResponseType.IncludesCode() {
			return oauth2.NewError(oauth2.ErrInvalidRequest, "PKCE required for public clients")
		}
		return nil
	}
	if challenge == "" {
		return oauth2.NewError(oauth2.ErrInvalidRequest, "code_challenge_method without code_challenge")
	}
	if len(challenge) < pkceMinLength || len(challenge) > pkceMaxLength {
		return oauth2.NewError(oauth2.ErrInvalidRequest, "code_challenge length out of range")
	}
	if method == "" {
		method = string(oauth2.CodeMethodTypePlain)
	}
	switch m := oauth2.CodeMethodType(method); m {
	case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain:
		req.CodeChallenge = challenge
		req.CodeChallengeMethod = m
		return nil
	default:
		return oauth2.NewError(oauth2.ErrInvalidRequest, "invalid code_challenge_method")
	}
}

// mergeRequestObject decodes a signed request object (JWT-encoded parameters)
// and merges its claims over the outer parameters so they can be re-validated
// against the same rules. The object must be signed with one of the client's
// plain shared secrets; client_id and response_type must match the outer
// request when both are present.
func (v *AuthorizeRequestValidator) mergeRequestObject(client *clients.Client, outer url.Values, requestObject string) (url.Values, *oauth2.Error) {
	parsed, err := jwt.Parse(requestObject, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		for _, s := range client.Secrets {
			if s.Type == clients.SecretTypePlain {
				return []byte(s.Value), nil
			}
		}
		return nil, jwt.ErrTokenUnverifiable
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, oauth2.NewRedirectableError(oauth2.ErrInvalidRequest, "invalid request object", outer.Get("state"))
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, oauth2.NewRedirectableError(oauth2.ErrInvalidRequest, "invalid request object", outer.Get("state"))
	}

	merged := url.Values{}
	for k, vs := range outer {
		if k == "request" {
			continue
		}
		merged[k] = vs
	}
	for name, value := range claims {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch name {
		case "client_id", "response_type":
			if outerValue := outer.Get(name); outerValue != "" && outerValue != s {
				return nil, oauth2.NewRedirectableError(oauth2.ErrInvalidRequest, "request object conflicts with request parameters", outer.Get("state"))
			}
		}
		merged.Set(name, s)
	}
	return merged, nil
}
