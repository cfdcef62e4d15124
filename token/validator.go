package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/keys"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/subjects"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)

// Validated is the outcome of successful inbound token validation.
type Validated struct {
	ClientID   string
	SubjectID  string
	Scopes     []string
	Claims     subjects.Claims
	Issuer     string
	Audience   []string
	Jti        string
	IssuedAt   time.Time
	Expiration time.Time
	Reference  bool
}

// Validator verifies inbound tokens: signed tokens against the validation key
// superset, reference tokens against the grant store.
type Validator struct {
	keys            *keys.Service
	referenceTokens *grants.ReferenceTokenStore
	issuer          string
	revoked         RevokedTokenCache
	logger          zerolog.Logger
	now             func() time.Time
}

type ValidatorOption func(*Validator)

func WithValidatorNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.now = now
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ValidatorOption {
	return func(v *Validator) {
		v.revoked = cache
	}
}

func NewValidator(issuer string, keySvc *keys.Service, referenceTokens *grants.ReferenceTokenStore, logger zerolog.Logger, options ...ValidatorOption) *Validator {
	v := &Validator{
		keys:            keySvc,
		referenceTokens: referenceTokens,
		issuer:          issuer,
		revoked:         NewInMemoryRevokedTokenCache(),
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// looksSigned distinguishes a compact JWS from an opaque reference handle.
func looksSigned(raw string) bool {
	return strings.Count(raw, ".") == 2
}

// ValidateToken verifies a token's signature, expiration, issuer, audience
// and revocation state. expectedAudience may be empty to skip the audience
// check (e.g. introspection by a trusted resource).
func (v *Validator) ValidateToken(raw string, expectedAudience string) (*Validated, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInvalidToken
	}
	if !looksSigned(raw) {
		return v.validateReferenceToken(raw, expectedAudience)
	}
	return v.validateSignedToken(raw, expectedAudience)
}

func (v *Validator) validateSignedToken(raw string, expectedAudience string) (*Validated, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if expectedAudience != "" {
		opts = append(opts, jwt.WithAudience(expectedAudience))
	}

	parsed, err := jwt.Parse(raw, v.verificationKey, opts...)
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(ErrInvalidToken, "signature or claim validation failed")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	jti, _ := claims["jti"].(string)
	if jti != "" && v.revoked.IsRevoked(jti) {
		return nil, ErrTokenRevoked
	}

	out := &Validated{Jti: jti}
	out.Issuer, _ = claims["iss"].(string)
	out.ClientID, _ = claims["client_id"].(string)
	out.SubjectID, _ = claims["sub"].(string)
	if scope, ok := claims["scope"].(string); ok {
		out.Scopes = strings.Fields(scope)
	}
	if aud, err := claims.GetAudience(); err == nil {
		out.Audience = aud
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Expiration = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	for name, value := range claims {
		switch name {
		case "iss", "aud", "exp", "iat", "nbf", "jti", "scope", "client_id", "sub":
			continue
		}
		switch val := value.(type) {
		case string:
			out.Claims = out.Claims.Add(subjects.Claim{Type: name, Value: val})
		case []any:
			for _, item := range val {
				if s, ok := item.(string); ok {
					out.Claims = out.Claims.Add(subjects.Claim{Type: name, Value: s})
				}
			}
		}
	}
	return out, nil
}

// verificationKey selects a validation key by kid, falling back to the first
// key matching the token's algorithm for tokens minted before kid headers.
func (v *Validator) verificationKey(t *jwt.Token) (any, error) {
	validationKeys := v.keys.ValidationKeys()
	if kid, ok := t.Header["kid"].(string); ok && kid != "" {
		for _, k := range validationKeys {
			if k.KeyID == kid {
				return k.Key, nil
			}
		}
		return nil, errors.Errorf("no validation key with kid %q", kid)
	}
	for _, k := range validationKeys {
		if k.Algorithm == t.Method.Alg() {
			return k.Key, nil
		}
	}
	return nil, errors.Errorf("no validation key for algorithm %q", t.Method.Alg())
}

func (v *Validator) validateReferenceToken(handle string, expectedAudience string) (*Validated, error) {
	ref, err := v.referenceTokens.Get(handle)
	if err != nil {
		// Missing, expired and corrupt entries are all just invalid.
		return nil, ErrInvalidToken
	}
	if expectedAudience != "" && !contains(ref.Audience, expectedAudience) {
		return nil, errors.Wrap(ErrInvalidToken, "audience mismatch")
	}
	return &Validated{
		ClientID:   ref.ClientID,
		SubjectID:  ref.SubjectID,
		Scopes:     ref.Scopes,
		Claims:     ref.Claims,
		Issuer:     ref.Issuer,
		Audience:   ref.Audience,
		IssuedAt:   ref.CreationTime,
		Expiration: ref.Expiration(),
		Reference:  true,
	}, nil
}

// Introspect maps token validation to the RFC 7662 response. Invalid tokens
// yield {active: false}, never an error.
func (v *Validator) Introspect(raw string) *oauth2.Introspection {
	validated, err := v.ValidateToken(raw, "")
	if err != nil {
		return &oauth2.Introspection{Active: false}
	}
	return &oauth2.Introspection{
		Active:    true,
		Scope:     strings.Join(validated.Scopes, " "),
		ClientID:  validated.ClientID,
		TokenType: "Bearer",
		Sub:       validated.SubjectID,
		Aud:       validated.Audience,
		Iss:       validated.Issuer,
		Exp:       validated.Expiration.Unix(),
		Iat:       validated.IssuedAt.Unix(),
		Jti:       validated.Jti,
	}
}

// Revoke invalidates a token. Reference tokens are removed from the store;
// signed tokens are added to the jti revocation list until expiry.
func (v *Validator) Revoke(raw string) error {
	if !looksSigned(raw) {
		return v.referenceTokens.Remove(raw)
	}

	validated, err := v.validateSignedToken(raw, "")
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil // revoking twice is fine
		}
		return err
	}
	if validated.Jti == "" {
		return errors.Wrap(ErrInvalidToken, "token has no jti")
	}
	return v.revoked.Add(validated.Jti, validated.Expiration)
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
