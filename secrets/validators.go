package secrets

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/idpkit/idpkit/clients"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidSecret = errors.New("invalid client secret")

// Validator compares a presented credential against one stored secret.
// Implementations must be constant-time with respect to the credential to
// resist timing attacks.
type Validator interface {
	// Supports reports whether this validator handles the stored secret type.
	Supports(secretType clients.SecretType) bool
	Validate(stored clients.Secret, credential string) bool
}

// BcryptValidator validates bcrypt-hashed stored secrets. bcrypt comparison
// is inherently constant-time.
type BcryptValidator struct{}

func (BcryptValidator) Supports(t clients.SecretType) bool { return t == clients.SecretTypeBcrypt }

func (BcryptValidator) Validate(stored clients.Secret, credential string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored.Value), []byte(credential)) == nil
}

// SHA256Validator validates secrets stored as base64(SHA-256(secret)).
// Hashing the presented credential first makes the comparison fixed-length,
// so ConstantTimeCompare is constant-time regardless of secret length.
type SHA256Validator struct{}

func (SHA256Validator) Supports(t clients.SecretType) bool { return t == clients.SecretTypeSHA256 }

func (SHA256Validator) Validate(stored clients.Secret, credential string) bool {
	digest := sha256.Sum256([]byte(credential))
	encoded := base64.StdEncoding.EncodeToString(digest[:])
	return subtle.ConstantTimeCompare([]byte(stored.Value), []byte(encoded)) == 1
}

// PlainTextValidator compares plaintext stored secrets. Both sides are hashed
// before comparison to keep it constant-time in the credential length.
type PlainTextValidator struct{}

func (PlainTextValidator) Supports(t clients.SecretType) bool { return t == clients.SecretTypePlain }

func (PlainTextValidator) Validate(stored clients.Secret, credential string) bool {
	a := sha256.Sum256([]byte(stored.Value))
	b := sha256.Sum256([]byte(credential))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// ValidatorChain validates a parsed credential against every non-expired
// secret on the client, trying each registered validator. Succeeds on the
// first match.
type ValidatorChain struct {
	validators []Validator
	logger     zerolog.Logger
	now        func() time.Time
}

type ValidatorChainOption func(*ValidatorChain)

func WithNowFunc(now func() time.Time) ValidatorChainOption {
	return func(c *ValidatorChain) {
		c.now = now
	}
}

func NewValidatorChain(logger zerolog.Logger, options ...ValidatorChainOption) *ValidatorChain {
	c := &ValidatorChain{
		validators: []Validator{BcryptValidator{}, SHA256Validator{}, PlainTextValidator{}},
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Validate checks the parsed credential against the client's secrets.
func (c *ValidatorChain) Validate(client *clients.Client, parsed *ParsedSecret) error {
	if parsed == nil || parsed.Type == TypeNone {
		return errors.Wrap(ErrInvalidSecret, "no credential presented")
	}

	active := client.ActiveSecrets(c.now())
	if len(active) == 0 {
		c.logger.Debug().Str("client_id", client.ID).Msg("client has no active secrets")
		return ErrInvalidSecret
	}

	for _, stored := range active {
		for _, v := range c.validators {
			if !v.Supports(stored.Type) {
				continue
			}
			if v.Validate(stored, parsed.Credential) {
				return nil
			}
		}
	}
	return ErrInvalidSecret
}
