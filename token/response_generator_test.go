package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/grants/memstore"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	fakeresourcerepo "github.com/idpkit/idpkit/resources/fakerepo"
	"github.com/idpkit/idpkit/subjects"
	"github.com/idpkit/idpkit/token"
	"github.com/idpkit/idpkit/validation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type responseFixture struct {
	*tokenFixture
	refreshTokens *grants.RefreshTokenStore
	generator     *token.ResponseGenerator
}

type responseProfile struct{}

func (responseProfile) GetClaims(subjectID string, _ []string) (subjects.Claims, error) {
	return subjects.Claims{
		{Type: "email", Value: subjectID + "@example.com"},
		{Type: "name", Value: "John Doe"},
	}, nil
}

func (responseProfile) IsActive(string) (bool, error) { return true, nil }

func setupResponseFixture(t *testing.T) *responseFixture {
	t.Helper()

	f := &responseFixture{tokenFixture: setupTokenFixture(t)}

	store := memstore.New(memstore.WithNowFunc(f.nowFunc()))
	f.refreshTokens = grants.NewRefreshTokenStore(store, grants.NewSerializer(), zerolog.Nop())

	resourceRepo := fakeresourcerepo.NewFakeResourceRepo(
		resources.Resource{Name: "openid", Type: resources.IdentityResource, ClaimTypes: []string{"email"}},
		resources.Resource{Name: "api1", Type: resources.APIResource, ClaimTypes: []string{"role"}},
	)

	f.generator = token.NewResponseGenerator(
		f.service,
		f.refreshTokens,
		resourceRepo,
		responseProfile{},
		zerolog.Nop(),
		token.WithResponseNowFunc(f.nowFunc()),
	)
	return f
}

func grantResult(client *clients.Client, offline bool) *validation.GrantValidationResult {
	return &validation.GrantValidationResult{
		Client:        client,
		GrantType:     oauth2.AuthorizationCodeGrant,
		Subject:       &subjects.Subject{ID: testSubjectID, AuthTime: time.Now()},
		GrantedScopes: []string{"openid", "api1"},
		OfflineAccess: offline,
		Nonce:         "nonce-1",
	}
}

func TestResponseGenerator_Process(t *testing.T) {
	f := setupResponseFixture(t)

	t.Run("mints access and identity tokens", func(t *testing.T) {
		response, err := f.generator.Process(grantResult(jwtClient(), false))
		require.NoError(t, err)
		require.NotEmpty(t, response.AccessToken)
		require.NotEmpty(t, response.IdToken)
		require.Empty(t, response.RefreshToken)
		require.Equal(t, "Bearer", response.TokenType)
		require.Equal(t, 3600, response.ExpiresIn)
		require.Equal(t, "openid api1", response.Scope)

		validated, err := f.validator.ValidateToken(response.AccessToken, testAudience)
		require.NoError(t, err)
		require.Equal(t, "user-1@example.com", validated.Claims.Value("email"))
	})

	t.Run("identity token carries nonce and at_hash", func(t *testing.T) {
		response, err := f.generator.Process(grantResult(jwtClient(), false))
		require.NoError(t, err)

		parsed, _, err := jwt.NewParser().ParseUnverified(response.IdToken, jwt.MapClaims{})
		require.NoError(t, err)
		claims := parsed.Claims.(jwt.MapClaims)
		require.Equal(t, "nonce-1", claims["nonce"])
		require.NotEmpty(t, claims["at_hash"])
		require.Equal(t, testClientID, claims["aud"])
	})

	t.Run("no id_token without openid scope", func(t *testing.T) {
		result := grantResult(jwtClient(), false)
		result.GrantedScopes = []string{"api1"}
		response, err := f.generator.Process(result)
		require.NoError(t, err)
		require.Empty(t, response.IdToken)
	})

	t.Run("no id_token for machine grants", func(t *testing.T) {
		result := grantResult(jwtClient(), false)
		result.Subject = nil
		result.GrantType = oauth2.ClientCredentialsGrant
		response, err := f.generator.Process(result)
		require.NoError(t, err)
		require.Empty(t, response.IdToken)
	})

	t.Run("reference style produces an opaque access token", func(t *testing.T) {
		response, err := f.generator.Process(grantResult(referenceClient(), false))
		require.NoError(t, err)
		require.NotContains(t, response.AccessToken, ".")

		validated, err := f.validator.ValidateToken(response.AccessToken, testAudience)
		require.NoError(t, err)
		require.True(t, validated.Reference)
	})
}

func TestResponseGenerator_RefreshTokens(t *testing.T) {
	f := setupResponseFixture(t)

	t.Run("fresh grant starts a new family", func(t *testing.T) {
		response, err := f.generator.Process(grantResult(jwtClient(), true))
		require.NoError(t, err)
		require.NotEmpty(t, response.RefreshToken)
		require.Contains(t, response.Scope, "offline_access")

		stored, consumed, err := f.refreshTokens.Get(response.RefreshToken)
		require.NoError(t, err)
		require.False(t, consumed)
		require.NotEmpty(t, stored.FamilyID)
		require.Equal(t, 1, stored.Generation)
	})

	t.Run("rotation inherits the family and advances the generation", func(t *testing.T) {
		result := grantResult(jwtClient(), true)
		result.GrantType = oauth2.RefreshTokenGrant
		result.RefreshFamilyID = "family-1"
		result.RefreshGeneration = 3

		response, err := f.generator.Process(result)
		require.NoError(t, err)

		stored, _, err := f.refreshTokens.Get(response.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, "family-1", stored.FamilyID)
		require.Equal(t, 4, stored.Generation)
	})
}
