// Package keys manages the signing credential set and the validation key
// superset that outlives it through rotation.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SigningCredential is a private key with its algorithm, usable for minting
// tokens.
type SigningCredential struct {
	KeyID      string
	Algorithm  string // RS256, RS384, RS512, ES256, ES384, ES512, HS256
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Secret     []byte // HMAC credentials only
}

// SecurityKeyInfo is a validation-only key: the public half (or shared
// secret) of a current or recently retired signing credential.
type SecurityKeyInfo struct {
	KeyID     string
	Algorithm string
	Key       any
}

// SigningMethod maps the algorithm name to the jwt signing method.
func (c *SigningCredential) SigningMethod() jwt.SigningMethod {
	return signingMethod(c.Algorithm)
}

func signingMethod(alg string) jwt.SigningMethod {
	switch alg {
	case "RS256":
		return jwt.SigningMethodRS256
	case "RS384":
		return jwt.SigningMethodRS384
	case "RS512":
		return jwt.SigningMethodRS512
	case "ES256":
		return jwt.SigningMethodES256
	case "ES384":
		return jwt.SigningMethodES384
	case "ES512":
		return jwt.SigningMethodES512
	case "HS256":
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodRS256
	}
}

// SignKey returns the key handed to the jwt library for signing.
func (c *SigningCredential) SignKey() any {
	if c.Secret != nil {
		return c.Secret
	}
	return c.PrivateKey
}

// ValidationKey returns the validation-only view of the credential.
func (c *SigningCredential) ValidationKey() SecurityKeyInfo {
	key := any(c.PublicKey)
	if c.Secret != nil {
		key = c.Secret
	}
	return SecurityKeyInfo{KeyID: c.KeyID, Algorithm: c.Algorithm, Key: key}
}

// GenerateRSACredential generates an RSA signing credential for the given
// algorithm (RS256/RS384/RS512).
func GenerateRSACredential(algorithm string, bits int) (*SigningCredential, error) {
	if bits < 2048 {
		bits = 2048
	}
	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}
	return &SigningCredential{
		KeyID:      uuid.New().String(),
		Algorithm:  algorithm,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// GenerateECDSACredential generates an ECDSA signing credential. The curve
// follows the algorithm (ES256 -> P-256, ES384 -> P-384, ES512 -> P-521).
func GenerateECDSACredential(algorithm string) (*SigningCredential, error) {
	var curve elliptic.Curve
	switch algorithm {
	case "ES256":
		curve = elliptic.P256()
	case "ES384":
		curve = elliptic.P384()
	case "ES512":
		curve = elliptic.P521()
	default:
		return nil, errors.Errorf("unsupported ECDSA algorithm %q", algorithm)
	}
	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate ECDSA key")
	}
	return &SigningCredential{
		KeyID:      uuid.New().String(),
		Algorithm:  algorithm,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// NewHMACCredential wraps a shared secret as an HS256 signing credential.
func NewHMACCredential(secret []byte) *SigningCredential {
	return &SigningCredential{
		KeyID:     uuid.New().String(),
		Algorithm: "HS256",
		Secret:    secret,
	}
}

// ExportPrivateKeyPEM exports the private key as PEM.
func (c *SigningCredential) ExportPrivateKeyPEM() (string, error) {
	var privateKeyBytes []byte
	var err error
	var blockType string

	switch key := c.PrivateKey.(type) {
	case *rsa.PrivateKey:
		privateKeyBytes = x509.MarshalPKCS1PrivateKey(key)
		blockType = "RSA PRIVATE KEY"
	case *ecdsa.PrivateKey:
		privateKeyBytes, err = x509.MarshalECPrivateKey(key)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal ECDSA private key")
		}
		blockType = "EC PRIVATE KEY"
	default:
		return "", errors.New("unsupported private key type")
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: privateKeyBytes})), nil
}

// LoadCredentialFromPEM reconstructs a signing credential from PEM key
// material.
func LoadCredentialFromPEM(keyID, algorithm, pemData string) (*SigningCredential, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse RSA private key")
		}
		return &SigningCredential{KeyID: keyID, Algorithm: algorithm, PrivateKey: key, PublicKey: &key.PublicKey}, nil
	case "EC PRIVATE KEY":
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse ECDSA private key")
		}
		return &SigningCredential{KeyID: keyID, Algorithm: algorithm, PrivateKey: key, PublicKey: &key.PublicKey}, nil
	default:
		return nil, errors.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// JWKS represents a JSON Web Key Set.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA specific
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC specific
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// ToJWK converts a validation key to JWK format. Symmetric keys are never
// published and return an error.
func (k SecurityKeyInfo) ToJWK() (*JWK, error) {
	jwk := &JWK{Kid: k.KeyID, Use: "sig", Alg: k.Algorithm}

	switch pubKey := k.Key.(type) {
	case *rsa.PublicKey:
		jwk.Kty = "RSA"
		jwk.N = base64.RawURLEncoding.EncodeToString(pubKey.N.Bytes())
		jwk.E = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pubKey.E)).Bytes())
	case *ecdsa.PublicKey:
		jwk.Kty = "EC"
		jwk.Crv = pubKey.Curve.Params().Name
		jwk.X = base64.RawURLEncoding.EncodeToString(pubKey.X.Bytes())
		jwk.Y = base64.RawURLEncoding.EncodeToString(pubKey.Y.Bytes())
	default:
		return nil, errors.New("unsupported public key type")
	}
	return jwk, nil
}
