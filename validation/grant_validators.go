package validation

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/internal/oidcerrors"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/idpkit/idpkit/subjects"
	"github.com/pkg/errors"
)

// validateAuthorizationCode redeems an authorization code. The code is removed
// from the store before any further check, so of two concurrent redemptions at
// most one can succeed and a failed validation never resurrects the code.
func (v *TokenRequestValidator) validateAuthorizationCode(req *ValidatedTokenRequest) (*GrantValidationResult, error) {
	handle := req.Raw.Get("code")
	if handle == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "code is missing")
	}

	code, err := v.codes.Take(handle)
	if err != nil {
		if perr := storeFailure(err); perr != nil {
			return nil, perr
		}
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateAuthorizationCode] take code")
	}

	if code.ClientID != req.Client.ID {
		v.logger.Warn().Str("client_id", req.Client.ID).Str("code_client_id", code.ClientID).Msg("authorization code presented by wrong client")
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "authorization code is invalid")
	}
	if v.now().After(code.Expiration()) {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "authorization code has expired")
	}
	if req.Raw.Get("redirect_uri") != code.RedirectURI {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if perr := verifyCodeVerifier(code, req.Raw.Get("code_verifier")); perr != nil {
		return nil, perr
	}

	subject := &subjects.Subject{ID: code.SubjectID, AuthTime: code.AuthTime, Claims: code.Claims}
	if perr, err := v.requireActiveSubject(subject.ID); err != nil {
		return nil, err
	} else if perr != nil {
		return nil, perr
	}

	v.sink.Raise(events.Event{
		Type:      events.TypeGrantRedeemed,
		ClientID:  req.Client.ID,
		SubjectID: code.SubjectID,
		Details:   map[string]any{"grant_type": string(oauth2.AuthorizationCodeGrant)},
	})

	return &GrantValidationResult{
		Client:        req.Client,
		GrantType:     oauth2.AuthorizationCodeGrant,
		Subject:       subject,
		GrantedScopes: stripScope(code.GrantedScopes, resources.OfflineAccessScope),
		OfflineAccess: containsScope(code.GrantedScopes, resources.OfflineAccessScope),
		SessionID:     code.SessionID,
		Nonce:         code.Nonce,
	}, nil
}

// verifyCodeVerifier checks PKCE (RFC 7636 §4.6). A code issued with a
// challenge can only be redeemed with a matching verifier.
func verifyCodeVerifier(code *grants.AuthorizationCode, verifier string) *oauth2.Error {
	if code.CodeChallenge == "" {
		return nil
	}
	if len(verifier) < pkceMinLength || len(verifier) > pkceMaxLength {
		return oauth2.NewError(oauth2.ErrInvalidGrant, "code_verifier is missing or malformed")
	}

	var derived string
	switch code.CodeChallengeMethod {
	case oauth2.CodeMethodTypeS256:
		digest := sha256.Sum256([]byte(verifier))
		derived = base64.RawURLEncoding.EncodeToString(digest[:])
	default:
		derived = verifier
	}
	if subtle.ConstantTimeCompare([]byte(derived), []byte(code.CodeChallenge)) != 1 {
		return oauth2.NewError(oauth2.ErrInvalidGrant, "code_verifier is invalid")
	}
	return nil
}

// validateRefreshToken redeems a rotating refresh token. With reuse detection
// the presented handle is marked consumed rather than deleted, so replaying it
// later is distinguishable from an unknown handle and revokes the family.
func (v *TokenRequestValidator) validateRefreshToken(req *ValidatedTokenRequest) (*GrantValidationResult, error) {
	handle := req.Raw.Get("refresh_token")
	if handle == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "refresh_token is missing")
	}

	var (
		token *grants.RefreshToken
		err   error
	)
	if v.detectReuse {
		token, err = v.consumeWithReuseDetection(handle)
	} else {
		token, err = v.refreshTokens.Take(handle)
	}
	if err != nil {
		if perr := storeFailure(err); perr != nil {
			return nil, perr
		}
		return nil, err
	}

	if token.ClientID != req.Client.ID {
		v.logger.Warn().Str("client_id", req.Client.ID).Str("token_client_id", token.ClientID).Msg("refresh token presented by wrong client")
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token is invalid")
	}
	if v.now().After(token.Expiration()) {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token has expired")
	}

	granted := token.GrantedScopes
	if requested := req.Raw.Get("scope"); requested != "" {
		narrowed, perr := narrowScopes(granted, requested)
		if perr != nil {
			return nil, perr
		}
		granted = narrowed
	}

	subject := &subjects.Subject{ID: token.SubjectID, AuthTime: token.AuthTime, Claims: token.Claims}
	if perr, err := v.requireActiveSubject(subject.ID); err != nil {
		return nil, err
	} else if perr != nil {
		return nil, perr
	}

	v.sink.Raise(events.Event{
		Type:      events.TypeGrantRedeemed,
		ClientID:  req.Client.ID,
		SubjectID: token.SubjectID,
		Details:   map[string]any{"grant_type": string(oauth2.RefreshTokenGrant)},
	})

	return &GrantValidationResult{
		Client:            req.Client,
		GrantType:         oauth2.RefreshTokenGrant,
		Subject:           subject,
		GrantedScopes:     granted,
		OfflineAccess:     true,
		SessionID:         token.SessionID,
		RefreshFamilyID:   token.FamilyID,
		RefreshGeneration: token.Generation,
	}, nil
}

// consumeWithReuseDetection marks the handle consumed. If it already was, an
// attacker or a confused client is replaying a rotated token; every descendant
// of the original grant is revoked.
func (v *TokenRequestValidator) consumeWithReuseDetection(handle string) (*grants.RefreshToken, error) {
	token, err := v.refreshTokens.Consume(handle)
	if errors.Is(err, grants.ErrAlreadyConsumed) {
		replayed, _, getErr := v.refreshTokens.Get(handle)
		if getErr == nil {
			v.logger.Warn().
				Str("client_id", replayed.ClientID).
				Str("family_id", replayed.FamilyID).
				Int("generation", replayed.Generation).
				Msg("refresh token reuse detected, revoking family")
			if revokeErr := v.refreshTokens.RevokeFamily(replayed.SubjectID, replayed.ClientID, replayed.FamilyID); revokeErr != nil {
				return nil, errors.Wrap(revokeErr, "[TokenRequestValidator.validateRefreshToken] revoke family")
			}
			v.sink.Raise(events.Event{
				Type:      events.TypeGrantReuseDetected,
				ClientID:  replayed.ClientID,
				SubjectID: replayed.SubjectID,
				Details:   map[string]any{"family_id": replayed.FamilyID, "generation": replayed.Generation},
			})
		}
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "refresh token has already been used")
	}
	return token, err
}

func (v *TokenRequestValidator) validateClientCredentials(req *ValidatedTokenRequest) (*GrantValidationResult, error) {
	if req.Client.IsPublic() {
		return nil, oauth2.NewError(oauth2.ErrUnauthorizedClient, "public clients cannot use client_credentials")
	}

	validated, perr, err := v.validateRequestedScopes(req, req.Raw.Get("scope"))
	if err != nil {
		return nil, err
	}
	if perr != nil {
		return nil, perr
	}
	if validated.OfflineAccess {
		return nil, oauth2.NewError(oauth2.ErrInvalidScope, "offline_access is not valid for client_credentials")
	}

	return &GrantValidationResult{
		Client:        req.Client,
		GrantType:     oauth2.ClientCredentialsGrant,
		GrantedScopes: validated.ScopeNames(),
	}, nil
}

func (v *TokenRequestValidator) validatePassword(req *ValidatedTokenRequest) (*GrantValidationResult, error) {
	if v.passwords == nil {
		return nil, oauth2.NewError(oauth2.ErrUnsupportedGrantType, "password grant is not configured")
	}

	username := req.Raw.Get("username")
	password := req.Raw.Get("password")
	if username == "" || password == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "username or password is missing")
	}

	subject, err := v.passwords.ValidateCredentials(username, password)
	if err != nil || subject == nil {
		v.logger.Info().Str("client_id", req.Client.ID).Str("username", username).Msg("resource owner credential validation failed")
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "invalid username or password")
	}

	validated, perr, err := v.validateRequestedScopes(req, req.Raw.Get("scope"))
	if err != nil {
		return nil, err
	}
	if perr != nil {
		return nil, perr
	}

	return &GrantValidationResult{
		Client:        req.Client,
		GrantType:     oauth2.PasswordGrant,
		Subject:       subject,
		GrantedScopes: validated.ScopeNames(),
		OfflineAccess: validated.OfflineAccess,
	}, nil
}

func (v *TokenRequestValidator) validateRequestedScopes(req *ValidatedTokenRequest, raw string) (*resources.Validated, *oauth2.Error, error) {
	validated, err := v.resources.ParseAndValidate(req.Client, raw)
	if err != nil {
		var parseErr *resources.ParseError
		if errors.As(err, &parseErr) {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, parseErr.Error()), nil
		}
		return nil, nil, errors.Wrap(err, "[TokenRequestValidator] validate scopes")
	}
	return validated, nil, nil
}

// requireActiveSubject rejects grants for subjects that were deactivated after
// the grant was issued.
func (v *TokenRequestValidator) requireActiveSubject(subjectID string) (*oauth2.Error, error) {
	if subjectID == "" {
		return nil, nil
	}
	active, err := v.profile.IsActive(subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "[TokenRequestValidator] check subject active")
	}
	if !active {
		return oauth2.NewError(oauth2.ErrInvalidGrant, "subject is no longer active"), nil
	}
	return nil, nil
}

// storeFailure maps a grant store error to its protocol error, or nil when the
// failure is an internal fault the caller should wrap instead.
func storeFailure(err error) *oauth2.Error {
	if errors.Is(err, grants.ErrNotFound) ||
		errors.Is(err, grants.ErrCorruptGrant) ||
		errors.Is(err, grants.ErrAlreadyConsumed) ||
		errors.Is(err, grants.ErrStoreUnavailable) {
		return oidcerrors.MapStoreError(err)
	}
	return nil
}

func narrowScopes(granted []string, requested string) ([]string, *oauth2.Error) {
	parsed := splitScopes(requested)
	for _, s := range parsed {
		if !containsScope(granted, s) {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, "requested scope exceeds the original grant")
		}
	}
	return parsed, nil
}

func splitScopes(raw string) []string {
	return strings.Fields(raw)
}

func stripScope(scopes []string, name string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s != name {
			out = append(out, s)
		}
	}
	return out
}

func containsScope(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}
