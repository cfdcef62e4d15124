// Package token mints and validates security tokens: signed JWT identity and
// access tokens, and opaque reference tokens redeemed through the grant store.
package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/keys"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/subjects"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Request describes a token to mint.
type Request struct {
	Type     oauth2.TokenType
	Client   *clients.Client
	Subject  *subjects.Subject
	Claims   subjects.Claims
	Scopes   []string
	Audience []string
	Lifetime time.Duration

	// Nonce and AccessTokenHash are identity-token only.
	Nonce           string
	AccessTokenHash string

	SessionID string
}

// Service creates signed or opaque tokens from validated requests.
type Service struct {
	keys            *keys.Service
	referenceTokens *grants.ReferenceTokenStore
	issuer          string
	sink            events.Sink
	logger          zerolog.Logger
	now             func() time.Time
}

type ServiceOption func(*Service)

func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func WithEventSink(sink events.Sink) ServiceOption {
	return func(s *Service) {
		s.sink = sink
	}
}

func NewService(issuer string, keySvc *keys.Service, referenceTokens *grants.ReferenceTokenStore, logger zerolog.Logger, options ...ServiceOption) *Service {
	s := &Service{
		keys:            keySvc,
		referenceTokens: referenceTokens,
		issuer:          issuer,
		sink:            events.NopSink{},
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Issuer returns the configured token issuer.
func (s *Service) Issuer() string {
	return s.issuer
}

// CreateToken mints the requested token. Access tokens honor the client's
// access token style; identity tokens are always signed.
func (s *Service) CreateToken(req Request) (string, error) {
	switch req.Type {
	case oauth2.AccessTokenType:
		if req.Client != nil && req.Client.AccessTokenStyle == oauth2.ReferenceAccessToken {
			return s.createReferenceToken(req)
		}
		return s.createSignedToken(req)
	case oauth2.IdentityTokenType:
		return s.createSignedToken(req)
	default:
		return "", errors.Errorf("unsupported token type %q", req.Type)
	}
}

func (s *Service) createSignedToken(req Request) (string, error) {
	var allowedAlgs []string
	if req.Client != nil {
		allowedAlgs = req.Client.AllowedSigningAlgorithms
	}
	credential, err := s.keys.SigningCredential(allowedAlgs)
	if err != nil {
		return "", err
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(req.Lifetime).Unix(),
		"jti": uuid.New().String(),
	}
	if len(req.Audience) == 1 {
		claims["aud"] = req.Audience[0]
	} else if len(req.Audience) > 1 {
		claims["aud"] = req.Audience
	}
	if req.Client != nil {
		claims["client_id"] = req.Client.ID
	}
	if req.Subject.IsAuthenticated() {
		claims["sub"] = req.Subject.ID
		if !req.Subject.AuthTime.IsZero() {
			claims["auth_time"] = req.Subject.AuthTime.Unix()
		}
		if req.Subject.IdP != "" {
			claims["idp"] = req.Subject.IdP
		}
		if len(req.Subject.AMR) > 0 {
			claims["amr"] = req.Subject.AMR
		}
	}
	if len(req.Scopes) > 0 {
		claims["scope"] = strings.Join(req.Scopes, " ")
	}
	if req.Nonce != "" {
		claims["nonce"] = req.Nonce
	}
	if req.AccessTokenHash != "" {
		claims["at_hash"] = req.AccessTokenHash
	}
	if req.SessionID != "" {
		claims["sid"] = req.SessionID
	}
	for _, c := range req.Claims {
		if _, taken := claims[c.Type]; taken {
			continue
		}
		if values := req.Claims.Values(c.Type); len(values) > 1 {
			claims[c.Type] = values
		} else {
			claims[c.Type] = c.Value
		}
	}

	tok := jwt.NewWithClaims(credential.SigningMethod(), claims)
	tok.Header["kid"] = credential.KeyID
	tok.Header["typ"] = tokenHeaderType(req.Type)

	signed, err := tok.SignedString(credential.SignKey())
	if err != nil {
		return "", errors.Wrap(err, "[Service.CreateToken] sign")
	}

	s.sink.Raise(events.Event{
		Type:      events.TypeTokenIssued,
		ClientID:  clientID(req.Client),
		SubjectID: subjectID(req.Subject),
		Details:   map[string]any{"token_type": req.Type, "style": "jwt"},
	})
	return signed, nil
}

func (s *Service) createReferenceToken(req Request) (string, error) {
	ref := &grants.ReferenceToken{
		ClientID:     clientID(req.Client),
		SubjectID:    subjectID(req.Subject),
		SessionID:    req.SessionID,
		Claims:       req.Claims,
		Scopes:       req.Scopes,
		Issuer:       s.issuer,
		Audience:     req.Audience,
		CreationTime: s.now(),
		Lifetime:     req.Lifetime,
	}
	handle, err := s.referenceTokens.Store(ref)
	if err != nil {
		return "", errors.Wrap(err, "[Service.CreateToken] store reference token")
	}

	s.sink.Raise(events.Event{
		Type:      events.TypeTokenIssued,
		ClientID:  ref.ClientID,
		SubjectID: ref.SubjectID,
		Details:   map[string]any{"token_type": req.Type, "style": "reference"},
	})
	return handle, nil
}

func tokenHeaderType(t oauth2.TokenType) string {
	if t == oauth2.AccessTokenType {
		return "at+jwt"
	}
	return "JWT"
}

func clientID(c *clients.Client) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func subjectID(s *subjects.Subject) string {
	if s == nil {
		return ""
	}
	return s.ID
}
