package grants_test

import (
	"testing"
	"time"

	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/subjects"
	"github.com/stretchr/testify/require"
)

func TestSerializer_RoundTrip(t *testing.T) {
	serializer := grants.NewSerializer()
	now := time.Now().UTC().Truncate(time.Second)

	code := &grants.AuthorizationCode{
		ClientID:  "client-1",
		SubjectID: "user-1",
		AuthTime:  now,
		Claims: subjects.Claims{
			{Type: "email", Value: "john.doe@example.com"},
			{Type: "role", Value: "admin"},
			{Type: "role", Value: "auditor"},
		},
		RedirectURI:         "http://localhost:3000/callback",
		Nonce:               "nonce-1",
		GrantedScopes:       []string{"openid", "api1"},
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		CreationTime:        now,
		Lifetime:            5 * time.Minute,
	}

	data, err := serializer.Serialize(code)
	require.NoError(t, err)

	var decoded grants.AuthorizationCode
	require.NoError(t, serializer.Deserialize(data, &decoded))
	require.Equal(t, code.ClientID, decoded.ClientID)
	require.Equal(t, code.Claims, decoded.Claims)
	require.Equal(t, code.GrantedScopes, decoded.GrantedScopes)
	require.True(t, code.AuthTime.Equal(decoded.AuthTime))
	require.Equal(t, code.Expiration().Unix(), decoded.Expiration().Unix())
}

func TestSerializer_CorruptData(t *testing.T) {
	serializer := grants.NewSerializer()

	var decoded grants.AuthorizationCode
	err := serializer.Deserialize([]byte("{not json"), &decoded)
	require.ErrorIs(t, err, grants.ErrCorruptGrant)
}

func TestSerializer_UnknownFieldsIgnored(t *testing.T) {
	serializer := grants.NewSerializer()

	var decoded grants.RefreshToken
	err := serializer.Deserialize([]byte(`{"clientId":"c1","futureField":true}`), &decoded)
	require.NoError(t, err)
	require.Equal(t, "c1", decoded.ClientID)
}
