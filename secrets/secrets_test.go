package secrets_test

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/secrets"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testClientID     = "test-client-1"
	testClientSecret = "test-secret-1"
)

func postRequest(t *testing.T, form url.Values, basicAuth bool) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(url.QueryEscape(testClientID), url.QueryEscape(testClientSecret))
	}
	return req
}

func TestParserChain(t *testing.T) {
	chain := secrets.NewParserChain(zerolog.Nop())

	t.Run("basic auth wins over post body", func(t *testing.T) {
		form := url.Values{"client_id": {"body-client"}, "client_secret": {"body-secret"}}
		parsed, err := chain.Parse(postRequest(t, form, true))
		require.NoError(t, err)
		require.Equal(t, testClientID, parsed.ID)
		require.Equal(t, testClientSecret, parsed.Credential)
		require.Equal(t, secrets.TypeSharedSecret, parsed.Type)
	})

	t.Run("post body fallback", func(t *testing.T) {
		form := url.Values{"client_id": {testClientID}, "client_secret": {testClientSecret}}
		parsed, err := chain.Parse(postRequest(t, form, false))
		require.NoError(t, err)
		require.Equal(t, testClientID, parsed.ID)
		require.Equal(t, secrets.TypeSharedSecret, parsed.Type)
	})

	t.Run("client id without secret parses as none", func(t *testing.T) {
		form := url.Values{"client_id": {testClientID}}
		parsed, err := chain.Parse(postRequest(t, form, false))
		require.NoError(t, err)
		require.Equal(t, testClientID, parsed.ID)
		require.Equal(t, secrets.TypeNone, parsed.Type)
	})

	t.Run("no identification yields nil", func(t *testing.T) {
		parsed, err := chain.Parse(postRequest(t, url.Values{}, false))
		require.NoError(t, err)
		require.Nil(t, parsed)
	})
}

func newConfidentialClient(secretList ...clients.Secret) *clients.Client {
	return &clients.Client{
		ID:      testClientID,
		Type:    clients.ClientTypeConfidential,
		Secrets: secretList,
	}
}

func TestValidatorChain(t *testing.T) {
	chain := secrets.NewValidatorChain(zerolog.Nop())
	parsed := &secrets.ParsedSecret{ID: testClientID, Credential: testClientSecret, Type: secrets.TypeSharedSecret}

	t.Run("plain secret", func(t *testing.T) {
		client := newConfidentialClient(clients.Secret{Value: testClientSecret, Type: clients.SecretTypePlain})
		require.NoError(t, chain.Validate(client, parsed))
	})

	t.Run("sha256 secret", func(t *testing.T) {
		digest := sha256.Sum256([]byte(testClientSecret))
		client := newConfidentialClient(clients.Secret{
			Value: base64.StdEncoding.EncodeToString(digest[:]),
			Type:  clients.SecretTypeSHA256,
		})
		require.NoError(t, chain.Validate(client, parsed))
	})

	t.Run("bcrypt secret", func(t *testing.T) {
		hashed, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
		require.NoError(t, err)
		client := newConfidentialClient(clients.Secret{Value: string(hashed), Type: clients.SecretTypeBcrypt})
		require.NoError(t, chain.Validate(client, parsed))
	})

	t.Run("wrong credential fails", func(t *testing.T) {
		client := newConfidentialClient(clients.Secret{Value: testClientSecret, Type: clients.SecretTypePlain})
		wrong := &secrets.ParsedSecret{ID: testClientID, Credential: "wrong", Type: secrets.TypeSharedSecret}
		require.ErrorIs(t, chain.Validate(client, wrong), secrets.ErrInvalidSecret)
	})

	t.Run("expired secret is skipped", func(t *testing.T) {
		now := time.Now()
		expired := now.Add(-time.Hour)
		chain := secrets.NewValidatorChain(zerolog.Nop(), secrets.WithNowFunc(func() time.Time { return now }))
		client := newConfidentialClient(clients.Secret{
			Value:      testClientSecret,
			Type:       clients.SecretTypePlain,
			Expiration: &expired,
		})
		require.ErrorIs(t, chain.Validate(client, parsed), secrets.ErrInvalidSecret)
	})

	t.Run("no credential fails", func(t *testing.T) {
		client := newConfidentialClient(clients.Secret{Value: testClientSecret, Type: clients.SecretTypePlain})
		none := &secrets.ParsedSecret{ID: testClientID, Type: secrets.TypeNone}
		require.ErrorIs(t, chain.Validate(client, none), secrets.ErrInvalidSecret)
	})
}
