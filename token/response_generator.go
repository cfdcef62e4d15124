package token

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/internal/oidcerrors"
	"github.com/idpkit/idpkit/keys"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/idpkit/idpkit/subjects"
	"github.com/idpkit/idpkit/validation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	defaultAccessTokenLifetime   = time.Hour
	defaultIdentityTokenLifetime = 5 * time.Minute
	defaultRefreshTokenLifetime  = 30 * 24 * time.Hour

	openIDScope = "openid"
)

// ResponseGenerator turns a validated grant into the token endpoint response:
// an access token, an identity token when openid was granted, and a rotating
// refresh token when offline access was granted.
type ResponseGenerator struct {
	tokens        *Service
	refreshTokens *grants.RefreshTokenStore
	resourceRepo  resources.Repo
	profile       subjects.ProfileService
	logger        zerolog.Logger
	now           func() time.Time
}

type ResponseGeneratorOption func(*ResponseGenerator)

func WithResponseNowFunc(now func() time.Time) ResponseGeneratorOption {
	return func(g *ResponseGenerator) {
		g.now = now
	}
}

func NewResponseGenerator(
	tokens *Service,
	refreshTokens *grants.RefreshTokenStore,
	resourceRepo resources.Repo,
	profile subjects.ProfileService,
	logger zerolog.Logger,
	options ...ResponseGeneratorOption,
) *ResponseGenerator {
	g := &ResponseGenerator{
		tokens:        tokens,
		refreshTokens: refreshTokens,
		resourceRepo:  resourceRepo,
		profile:       profile,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Process mints the response for a validated grant.
func (g *ResponseGenerator) Process(result *validation.GrantValidationResult) (*oauth2.TokenResponse, error) {
	audience, claimTypes, err := g.resolveResources(result.GrantedScopes)
	if err != nil {
		return nil, err
	}

	claims, err := g.loadClaims(result.Subject, claimTypes)
	if err != nil {
		return nil, err
	}

	scopes := result.GrantedScopes
	if result.OfflineAccess {
		scopes = append(append([]string{}, scopes...), resources.OfflineAccessScope)
	}

	accessLifetime := result.Client.AccessTokenLifetime
	if accessLifetime <= 0 {
		accessLifetime = defaultAccessTokenLifetime
	}

	accessToken, err := g.tokens.CreateToken(Request{
		Type:      oauth2.AccessTokenType,
		Client:    result.Client,
		Subject:   result.Subject,
		Claims:    claims,
		Scopes:    scopes,
		Audience:  audience,
		Lifetime:  accessLifetime,
		SessionID: result.SessionID,
	})
	if err != nil {
		if errors.Is(err, keys.ErrNoSigningKey) {
			g.logger.Error().Err(err).Str("clientID", result.Client.ID).Msg("no signing key available")
			return nil, oidcerrors.MapKeyError(err)
		}
		return nil, errors.Wrap(err, "[ResponseGenerator.Process] access token")
	}

	response := &oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(accessLifetime / time.Second),
		Scope:       strings.Join(scopes, " "),
	}

	if containsScope(result.GrantedScopes, openIDScope) && result.Subject.IsAuthenticated() {
		idToken, err := g.createIdentityToken(result, claims, accessToken)
		if err != nil {
			return nil, err
		}
		response.IdToken = idToken
	}

	if result.OfflineAccess {
		refreshToken, err := g.createRefreshToken(result)
		if err != nil {
			return nil, err
		}
		response.RefreshToken = refreshToken
	}
	return response, nil
}

func (g *ResponseGenerator) createIdentityToken(result *validation.GrantValidationResult, claims subjects.Claims, accessToken string) (string, error) {
	lifetime := result.Client.IdentityTokenLifetime
	if lifetime <= 0 {
		lifetime = defaultIdentityTokenLifetime
	}

	idToken, err := g.tokens.CreateToken(Request{
		Type:            oauth2.IdentityTokenType,
		Client:          result.Client,
		Subject:         result.Subject,
		Claims:          claims,
		Audience:        []string{result.Client.ID},
		Lifetime:        lifetime,
		Nonce:           result.Nonce,
		AccessTokenHash: accessTokenHash(accessToken),
		SessionID:       result.SessionID,
	})
	if err != nil {
		return "", errors.Wrap(err, "[ResponseGenerator.Process] identity token")
	}
	return idToken, nil
}

// createRefreshToken stores a fresh rotating handle. A grant redeemed through
// the refresh grant inherits the family and advances the generation; anything
// else starts a new family.
func (g *ResponseGenerator) createRefreshToken(result *validation.GrantValidationResult) (string, error) {
	familyID := result.RefreshFamilyID
	generation := result.RefreshGeneration + 1
	if familyID == "" {
		familyID = uuid.New().String()
		generation = 1
	}

	lifetime := result.Client.RefreshTokenLifetime
	if lifetime <= 0 {
		lifetime = defaultRefreshTokenLifetime
	}

	token := &grants.RefreshToken{
		ClientID:      result.Client.ID,
		SubjectID:     subjectID(result.Subject),
		SessionID:     result.SessionID,
		AuthTime:      authTime(result.Subject),
		FamilyID:      familyID,
		Generation:    generation,
		GrantedScopes: result.GrantedScopes,
		CreationTime:  g.now(),
		Lifetime:      lifetime,
	}
	if result.Subject != nil {
		token.Claims = result.Subject.Claims
	}

	handle, err := g.refreshTokens.Store(token)
	if err != nil {
		return "", errors.Wrap(err, "[ResponseGenerator.Process] store refresh token")
	}
	return handle, nil
}

func (g *ResponseGenerator) resolveResources(scopeNames []string) (audience []string, claimTypes []string, err error) {
	registered, err := g.resourceRepo.GetResources(scopeNames)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[ResponseGenerator.Process] resolve resources")
	}

	seenTypes := map[string]bool{}
	for _, r := range registered {
		if r.Type == resources.APIResource {
			audience = append(audience, r.Name)
		}
		for _, ct := range r.ClaimTypes {
			if !seenTypes[ct] {
				seenTypes[ct] = true
				claimTypes = append(claimTypes, ct)
			}
		}
	}
	return audience, claimTypes, nil
}

func (g *ResponseGenerator) loadClaims(subject *subjects.Subject, claimTypes []string) (subjects.Claims, error) {
	if !subject.IsAuthenticated() || len(claimTypes) == 0 {
		return nil, nil
	}
	claims, err := g.profile.GetClaims(subject.ID, claimTypes)
	if err != nil {
		return nil, errors.Wrap(err, "[ResponseGenerator.Process] load claims")
	}
	return claims.FilterTypes(claimTypes), nil
}

// accessTokenHash computes the OIDC at_hash value: the base64url encoding of
// the left half of the SHA-256 digest of the access token.
func accessTokenHash(accessToken string) string {
	digest := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2])
}

func containsScope(scopes []string, name string) bool {
	for _, s := range scopes {
		if s == name {
			return true
		}
	}
	return false
}

func authTime(s *subjects.Subject) time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.AuthTime
}
