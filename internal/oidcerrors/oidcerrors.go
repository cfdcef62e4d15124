// Package oidcerrors maps internal fault classes onto the protocol error
// taxonomy surfaced to clients.
package oidcerrors

import (
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/keys"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/pkg/errors"
)

// MapStoreError converts a grant store failure into the protocol error the
// client should see. Missing and corrupt grants are invalid_grant; a store
// outage is retryable.
func MapStoreError(err error) *oauth2.Error {
	switch {
	case errors.Is(err, grants.ErrNotFound), errors.Is(err, grants.ErrCorruptGrant):
		return oauth2.NewError(oauth2.ErrInvalidGrant, "grant is invalid or expired")
	case errors.Is(err, grants.ErrAlreadyConsumed):
		return oauth2.NewError(oauth2.ErrInvalidGrant, "grant has already been used")
	case errors.Is(err, grants.ErrStoreUnavailable):
		return oauth2.NewError(oauth2.ErrTemporarilyUnavailable, "grant store unavailable")
	default:
		return oauth2.NewError(oauth2.ErrServerError, "")
	}
}

// MapKeyError converts key material failures. A missing signing key is an
// operator problem; clients only see a generic server error.
func MapKeyError(err error) *oauth2.Error {
	if errors.Is(err, keys.ErrNoSigningKey) {
		return oauth2.NewError(oauth2.ErrServerError, "token issuance unavailable")
	}
	return oauth2.NewError(oauth2.ErrServerError, "")
}
