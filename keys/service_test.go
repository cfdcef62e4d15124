package keys_test

import (
	"testing"
	"time"

	"github.com/idpkit/idpkit/keys"
	"github.com/stretchr/testify/require"
)

func mustRSACredential(t *testing.T, alg string) *keys.SigningCredential {
	t.Helper()
	cred, err := keys.GenerateRSACredential(alg, 2048)
	require.NoError(t, err)
	return cred
}

func TestService_SigningCredential(t *testing.T) {
	rs256 := mustRSACredential(t, "RS256")
	hmac := keys.NewHMACCredential([]byte("0123456789abcdef0123456789abcdef"))
	svc := keys.NewService([]*keys.SigningCredential{rs256, hmac})

	t.Run("unrestricted picks the first credential", func(t *testing.T) {
		cred, err := svc.SigningCredential(nil)
		require.NoError(t, err)
		require.Equal(t, rs256.KeyID, cred.KeyID)
	})

	t.Run("algorithm restriction is honored", func(t *testing.T) {
		cred, err := svc.SigningCredential([]string{"HS256"})
		require.NoError(t, err)
		require.Equal(t, hmac.KeyID, cred.KeyID)
	})

	t.Run("no match fails", func(t *testing.T) {
		_, err := svc.SigningCredential([]string{"ES256"})
		require.ErrorIs(t, err, keys.ErrNoSigningKey)
	})

	t.Run("empty service fails", func(t *testing.T) {
		empty := keys.NewService(nil)
		_, err := empty.SigningCredential(nil)
		require.ErrorIs(t, err, keys.ErrNoSigningKey)
	})
}

func TestService_Rotation(t *testing.T) {
	now := time.Now()
	current := now
	first := mustRSACredential(t, "RS256")
	second := mustRSACredential(t, "RS256")

	svc := keys.NewService(
		[]*keys.SigningCredential{first},
		keys.WithRetention(48*time.Hour),
		keys.WithNowFunc(func() time.Time { return current }),
	)

	svc.Rotate([]*keys.SigningCredential{second})

	t.Run("new key signs", func(t *testing.T) {
		cred, err := svc.SigningCredential(nil)
		require.NoError(t, err)
		require.Equal(t, second.KeyID, cred.KeyID)
	})

	t.Run("retired key still validates", func(t *testing.T) {
		ids := validationKeyIDs(svc)
		require.Contains(t, ids, first.KeyID)
		require.Contains(t, ids, second.KeyID)
	})

	t.Run("retired key drops out after retention", func(t *testing.T) {
		current = now.Add(49 * time.Hour)
		ids := validationKeyIDs(svc)
		require.NotContains(t, ids, first.KeyID)
		require.Contains(t, ids, second.KeyID)
	})

	t.Run("carried over key is not retired", func(t *testing.T) {
		third := mustRSACredential(t, "RS256")
		svc.Rotate([]*keys.SigningCredential{second, third})
		svc.Rotate([]*keys.SigningCredential{second})

		// third retired, second stays active
		cred, err := svc.SigningCredential(nil)
		require.NoError(t, err)
		require.Equal(t, second.KeyID, cred.KeyID)
		require.Contains(t, validationKeyIDs(svc), third.KeyID)
	})
}

func TestService_JWKS(t *testing.T) {
	rsa := mustRSACredential(t, "RS256")
	ec, err := keys.GenerateECDSACredential("ES256")
	require.NoError(t, err)
	hmac := keys.NewHMACCredential([]byte("0123456789abcdef0123456789abcdef"))

	svc := keys.NewService([]*keys.SigningCredential{rsa, ec, hmac})

	set, err := svc.JWKS()
	require.NoError(t, err)
	require.Len(t, set.Keys, 2) // symmetric keys are never published

	kids := make([]string, 0, len(set.Keys))
	for _, k := range set.Keys {
		kids = append(kids, k.Kid)
	}
	require.Contains(t, kids, rsa.KeyID)
	require.Contains(t, kids, ec.KeyID)
}

func TestPEMRoundTrip(t *testing.T) {
	cred := mustRSACredential(t, "RS256")

	pemData, err := cred.ExportPrivateKeyPEM()
	require.NoError(t, err)

	loaded, err := keys.LoadCredentialFromPEM(cred.KeyID, cred.Algorithm, pemData)
	require.NoError(t, err)
	require.Equal(t, cred.KeyID, loaded.KeyID)
	require.Equal(t, cred.Algorithm, loaded.Algorithm)
}

func validationKeyIDs(svc *keys.Service) []string {
	validation := svc.ValidationKeys()
	ids := make([]string, 0, len(validation))
	for _, k := range validation {
		ids = append(ids, k.KeyID)
	}
	return ids
}
