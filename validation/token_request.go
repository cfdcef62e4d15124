package validation

import (
	"net/http"
	"time"

	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/idpkit/idpkit/secrets"
	"github.com/idpkit/idpkit/subjects"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ExtensionGrantValidator handles a custom grant type (RFC 6749 §4.5).
// Registered validators take precedence only for grant types the core does
// not implement itself.
type ExtensionGrantValidator interface {
	GrantType() oauth2.GrantType
	Validate(req *ValidatedTokenRequest) (*GrantValidationResult, error)
}

// TokenRequestValidator authenticates the client and validates the grant
// presented at the token endpoint.
type TokenRequestValidator struct {
	clients         clients.Repo
	resources       *resources.Validator
	parser          *secrets.ParserChain
	secretValidator *secrets.ValidatorChain

	codes         *grants.AuthorizationCodeStore
	refreshTokens *grants.RefreshTokenStore
	deviceCodes   *grants.DeviceCodeStore
	profile       subjects.ProfileService

	passwords  subjects.PasswordValidator
	extensions map[oauth2.GrantType]ExtensionGrantValidator
	throttle   *DeviceThrottle

	// detectReuse keeps consumed refresh tokens around so a replayed handle
	// can be told apart from an unknown one and revoke the whole family.
	detectReuse bool

	sink   events.Sink
	logger zerolog.Logger
	now    func() time.Time
}

type TokenRequestOption func(*TokenRequestValidator)

func WithTokenNowFunc(now func() time.Time) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.now = now
	}
}

func WithTokenEventSink(sink events.Sink) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.sink = sink
	}
}

func WithPasswordValidator(pv subjects.PasswordValidator) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.passwords = pv
	}
}

func WithExtensionGrant(ext ExtensionGrantValidator) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.extensions[ext.GrantType()] = ext
	}
}

func WithRefreshReuseDetection(enabled bool) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.detectReuse = enabled
	}
}

func WithDeviceThrottle(throttle *DeviceThrottle) TokenRequestOption {
	return func(v *TokenRequestValidator) {
		v.throttle = throttle
	}
}

func NewTokenRequestValidator(
	clientRepo clients.Repo,
	resourceValidator *resources.Validator,
	parser *secrets.ParserChain,
	secretValidator *secrets.ValidatorChain,
	codes *grants.AuthorizationCodeStore,
	refreshTokens *grants.RefreshTokenStore,
	deviceCodes *grants.DeviceCodeStore,
	profile subjects.ProfileService,
	logger zerolog.Logger,
	options ...TokenRequestOption,
) *TokenRequestValidator {
	v := &TokenRequestValidator{
		clients:         clientRepo,
		resources:       resourceValidator,
		parser:          parser,
		secretValidator: secretValidator,
		codes:           codes,
		refreshTokens:   refreshTokens,
		deviceCodes:     deviceCodes,
		profile:         profile,
		extensions:      map[oauth2.GrantType]ExtensionGrantValidator{},
		detectReuse:     true,
		sink:            events.NopSink{},
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	if v.throttle == nil {
		v.throttle = NewDeviceThrottle()
	}
	return v
}

// ValidateRequest authenticates the client, then dispatches on grant_type.
// Protocol failures come back as *oauth2.Error; anything else is an internal
// fault.
func (v *TokenRequestValidator) ValidateRequest(r *http.Request) (*GrantValidationResult, error) {
	if err := r.ParseForm(); err != nil {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "malformed request body")
	}

	client, err := v.authenticateClient(r)
	if err != nil {
		return nil, err
	}

	grantType := oauth2.GrantType(r.PostFormValue("grant_type"))
	if grantType == "" {
		return nil, v.fail(client, grantType, oauth2.NewError(oauth2.ErrInvalidRequest, "grant_type is missing"))
	}
	if !client.AllowsGrantType(grantType) {
		return nil, v.fail(client, grantType, oauth2.NewError(oauth2.ErrUnauthorizedClient, "client is not allowed to use this grant type"))
	}

	req := &ValidatedTokenRequest{Client: client, GrantType: grantType, Raw: r.PostForm}

	var result *GrantValidationResult
	switch grantType {
	case oauth2.AuthorizationCodeGrant:
		result, err = v.validateAuthorizationCode(req)
	case oauth2.RefreshTokenGrant:
		result, err = v.validateRefreshToken(req)
	case oauth2.ClientCredentialsGrant:
		result, err = v.validateClientCredentials(req)
	case oauth2.PasswordGrant:
		result, err = v.validatePassword(req)
	case oauth2.DeviceCodeGrant:
		result, err = v.validateDeviceCode(req)
	default:
		ext, ok := v.extensions[grantType]
		if !ok {
			return nil, v.fail(client, grantType, oauth2.NewError(oauth2.ErrUnsupportedGrantType, "unknown grant type"))
		}
		result, err = ext.Validate(req)
	}
	if err != nil {
		return nil, v.fail(client, grantType, err)
	}
	return result, nil
}

func (v *TokenRequestValidator) authenticateClient(r *http.Request) (*clients.Client, error) {
	parsed, err := v.parser.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.ValidateRequest] parse client credentials")
	}
	if parsed == nil || parsed.ID == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "no client identification present")
	}

	client, err := v.clients.Get(parsed.ID)
	if errors.Is(err, clients.ErrClientNotFound) {
		v.sink.Raise(events.Event{Type: events.TypeClientAuthFailed, ClientID: parsed.ID})
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "unknown client")
	}
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator.ValidateRequest] load client")
	}

	if parsed.Type == secrets.TypeNone {
		if !client.IsPublic() {
			v.sink.Raise(events.Event{Type: events.TypeClientAuthFailed, ClientID: client.ID})
			return nil, oauth2.NewError(oauth2.ErrInvalidClient, "client credential is missing")
		}
		return client, nil
	}

	if err := v.secretValidator.Validate(client, parsed); err != nil {
		v.sink.Raise(events.Event{Type: events.TypeClientAuthFailed, ClientID: client.ID})
		v.logger.Info().Str("client_id", client.ID).Msg("client authentication failed")
		return nil, oauth2.NewError(oauth2.ErrInvalidClient, "invalid client credential")
	}
	return client, nil
}

func (v *TokenRequestValidator) fail(client *clients.Client, grantType oauth2.GrantType, err error) error {
	var perr *oauth2.Error
	if errors.As(err, &perr) {
		clientID := ""
		if client != nil {
			clientID = client.ID
		}
		v.sink.Raise(events.Event{
			Type:     events.TypeTokenRequestFailed,
			ClientID: clientID,
			Details:  map[string]any{"grant_type": string(grantType), "error": string(perr.Code)},
		})
	}
	return err
}
