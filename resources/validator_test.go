package resources_test

import (
	"testing"

	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/resources"
	fakeresourcerepo "github.com/idpkit/idpkit/resources/fakerepo"
	"github.com/stretchr/testify/require"
)

func setupValidator(t *testing.T) (*resources.Validator, *clients.Client) {
	t.Helper()

	repo := fakeresourcerepo.NewFakeResourceRepo()
	repo.Add(resources.Resource{Name: "openid", Type: resources.IdentityResource, ClaimTypes: []string{"sub"}})
	repo.Add(resources.Resource{Name: "profile", Type: resources.IdentityResource, ClaimTypes: []string{"name", "email"}})
	repo.Add(resources.Resource{Name: "api1", Type: resources.APIResource, ClaimTypes: []string{"role"}})
	repo.Add(resources.Resource{Name: "transaction", Type: resources.APIResource, Parameterized: true})

	client := &clients.Client{
		ID:                 "test-client-1",
		Type:               clients.ClientTypeConfidential,
		Scopes:             []string{"openid", "profile", "api1", "transaction"},
		AllowOfflineAccess: true,
	}
	return resources.NewValidator(repo), client
}

func TestValidator_ParseScopes(t *testing.T) {
	validator, _ := setupValidator(t)

	t.Run("splits and dedupes exact tokens", func(t *testing.T) {
		parsed, err := validator.ParseScopes("api1 api1 transaction:42")
		require.NoError(t, err)
		require.Len(t, parsed, 2)
		require.Equal(t, "api1", parsed[0].Name)
		require.Equal(t, "transaction", parsed[1].Name)
		require.Equal(t, "42", parsed[1].Parameter)
		require.Equal(t, "transaction:42", parsed[1].Raw)
	})

	t.Run("different parameters are distinct scopes", func(t *testing.T) {
		parsed, err := validator.ParseScopes("transaction:42 transaction:43")
		require.NoError(t, err)
		require.Len(t, parsed, 2)
	})

	t.Run("parameter on plain scope is rejected", func(t *testing.T) {
		_, err := validator.ParseScopes("api1:42")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
		require.Equal(t, "api1:42", parseErr.Token)
	})

	t.Run("parameterized scope without parameter is rejected", func(t *testing.T) {
		_, err := validator.ParseScopes("transaction")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("empty parameter is rejected", func(t *testing.T) {
		_, err := validator.ParseScopes("transaction:")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
	})
}

func TestValidator_Validate(t *testing.T) {
	validator, client := setupValidator(t)

	t.Run("resolves identity and api resources", func(t *testing.T) {
		validated, err := validator.ParseAndValidate(client, "openid profile api1")
		require.NoError(t, err)
		require.Len(t, validated.IdentityResources, 2)
		require.Len(t, validated.APIResources, 1)
		require.ElementsMatch(t, []string{"sub", "name", "email", "role"}, validated.ClaimTypes())
	})

	t.Run("scope not allowed for client", func(t *testing.T) {
		restricted := &clients.Client{ID: "restricted", Scopes: []string{"openid"}}
		_, err := validator.ParseAndValidate(restricted, "openid api1")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
		require.Equal(t, "api1", parseErr.Token)
	})

	t.Run("unregistered scope is rejected", func(t *testing.T) {
		permissive := &clients.Client{ID: "permissive", Scopes: []string{"ghost"}}
		_, err := validator.ParseAndValidate(permissive, "ghost")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("offline_access honored when allowed", func(t *testing.T) {
		validated, err := validator.ParseAndValidate(client, "openid offline_access")
		require.NoError(t, err)
		require.True(t, validated.OfflineAccess)
		require.Equal(t, "openid offline_access", validated.ScopeString())
	})

	t.Run("offline_access rejected when not allowed", func(t *testing.T) {
		noOffline := &clients.Client{ID: "no-offline", Scopes: []string{"openid"}}
		_, err := validator.ParseAndValidate(noOffline, "openid offline_access")
		var parseErr *resources.ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("parameterized scope round trips through ScopeString", func(t *testing.T) {
		validated, err := validator.ParseAndValidate(client, "transaction:42")
		require.NoError(t, err)
		require.Equal(t, "transaction:42", validated.ScopeString())
		require.Equal(t, []string{"transaction"}, validated.ScopeNames())
	})
}
