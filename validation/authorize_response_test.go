package validation_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/validation"
	"github.com/stretchr/testify/require"
)

func TestAuthorizeResponseGenerator_CreateResponse(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("issues a redeemable code", func(t *testing.T) {
		req, perr := f.authorizeValidator.Validate(authorizeParams())
		require.Nil(t, perr)
		req.Subject = testSubject(f.now)

		response, err := f.authorizeResponses.CreateResponse(req)
		require.NoError(t, err)

		stored, err := f.codes.Get(response.Code)
		require.NoError(t, err)
		require.Equal(t, testSubjectID, stored.SubjectID)
		require.Equal(t, testRedirectURI, stored.RedirectURI)
		require.ElementsMatch(t, []string{"openid", "api1"}, stored.GrantedScopes)
	})

	t.Run("no subject is refused", func(t *testing.T) {
		req, perr := f.authorizeValidator.Validate(authorizeParams())
		require.Nil(t, perr)
		_, err := f.authorizeResponses.CreateResponse(req)
		require.Error(t, err)
	})

	t.Run("redirect URL carries code and state in the query", func(t *testing.T) {
		req, perr := f.authorizeValidator.Validate(authorizeParams())
		require.Nil(t, perr)
		req.Subject = testSubject(f.now)

		response, err := f.authorizeResponses.CreateResponse(req)
		require.NoError(t, err)

		redirect := response.RedirectURL()
		require.True(t, strings.HasPrefix(redirect, testRedirectURI+"?"))

		parsed, err := url.Parse(redirect)
		require.NoError(t, err)
		query := parsed.Query()
		require.Equal(t, response.Code, query.Get("code"))
		require.Equal(t, testState, query.Get("state"))
	})
}

func TestErrorRedirectURL(t *testing.T) {
	perr := oauth2.NewRedirectableError(oauth2.ErrAccessDenied, "the user denied the request", testState)

	t.Run("query mode", func(t *testing.T) {
		redirect := validation.ErrorRedirectURL(testRedirectURI, oauth2.QueryResponseMode, perr)
		parsed, err := url.Parse(redirect)
		require.NoError(t, err)
		query := parsed.Query()
		require.Equal(t, "access_denied", query.Get("error"))
		require.Equal(t, testState, query.Get("state"))
	})

	t.Run("fragment mode", func(t *testing.T) {
		redirect := validation.ErrorRedirectURL(testRedirectURI, oauth2.FragmentResponseMode, perr)
		require.Contains(t, redirect, "#")
		fragment := redirect[strings.Index(redirect, "#")+1:]
		values, err := url.ParseQuery(fragment)
		require.NoError(t, err)
		require.Equal(t, "access_denied", values.Get("error"))
	})
}
