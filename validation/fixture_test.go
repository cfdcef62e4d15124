package validation_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/idpkit/idpkit/clients"
	fakeclientrepo "github.com/idpkit/idpkit/clients/fakerepo"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/grants/memstore"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	fakeresourcerepo "github.com/idpkit/idpkit/resources/fakerepo"
	"github.com/idpkit/idpkit/secrets"
	"github.com/idpkit/idpkit/subjects"
	"github.com/idpkit/idpkit/validation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testClientID        = "test-client-1"
	testClientSecret    = "test-secret-1"
	testPublicClientID  = "spa-client"
	testDeviceClientID  = "device-client"
	testSubjectID       = "user-1"
	testUserPassword    = "password123"
	testRedirectURI     = "http://localhost:3000/callback"
	testState           = "random-state-value"
	testNonce           = "random-nonce-value"
	testCodeChallenge   = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testVerificationURI = "https://idp.example.com/device"
)

type fakeProfile struct {
	inactive map[string]bool
}

func (f *fakeProfile) GetClaims(subjectID string, _ []string) (subjects.Claims, error) {
	return subjects.Claims{{Type: "email", Value: subjectID + "@example.com"}}, nil
}

func (f *fakeProfile) IsActive(subjectID string) (bool, error) {
	return !f.inactive[subjectID], nil
}

type fakePasswords struct{}

func (fakePasswords) ValidateCredentials(username, password string) (*subjects.Subject, error) {
	if username == "john.doe" && password == testUserPassword {
		return &subjects.Subject{ID: testSubjectID, AuthTime: time.Now()}, nil
	}
	return nil, errors.New("invalid credentials")
}

type testFixture struct {
	clientRepo        *fakeclientrepo.FakeClientRepo
	resourceValidator *resources.Validator
	store             *memstore.Store

	codes         *grants.AuthorizationCodeStore
	refreshTokens *grants.RefreshTokenStore
	deviceCodes   *grants.DeviceCodeStore
	consents      *grants.ConsentStore

	authorizeValidator *validation.AuthorizeRequestValidator
	authorizeResponses *validation.AuthorizeResponseGenerator
	interaction        *validation.InteractionGenerator
	deviceService      *validation.DeviceGrantService
	profile            *fakeProfile

	now     time.Time
	current *time.Time
}

func (f *testFixture) nowFunc() func() time.Time {
	return func() time.Time { return *f.current }
}

func (f *testFixture) advance(d time.Duration) {
	*f.current = f.current.Add(d)
}

// newTokenValidator builds a fresh validator (and with it a fresh device
// throttle) on top of the fixture's stores.
func (f *testFixture) newTokenValidator(options ...validation.TokenRequestOption) *validation.TokenRequestValidator {
	options = append([]validation.TokenRequestOption{
		validation.WithTokenNowFunc(f.nowFunc()),
		validation.WithPasswordValidator(fakePasswords{}),
	}, options...)
	return validation.NewTokenRequestValidator(
		f.clientRepo,
		f.resourceValidator,
		secrets.NewParserChain(zerolog.Nop()),
		secrets.NewValidatorChain(zerolog.Nop(), secrets.WithNowFunc(f.nowFunc())),
		f.codes,
		f.refreshTokens,
		f.deviceCodes,
		f.profile,
		zerolog.Nop(),
		options...,
	)
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	now := time.Now()
	current := now
	f := &testFixture{now: now, current: &current}

	f.clientRepo = fakeclientrepo.NewFakeClientRepo()
	require.NoError(t, f.clientRepo.Upsert(&clients.Client{
		ID:      testClientID,
		Type:    clients.ClientTypeConfidential,
		Secrets: []clients.Secret{{Value: testClientSecret, Type: clients.SecretTypePlain}},
		GrantTypes: []oauth2.GrantType{
			oauth2.AuthorizationCodeGrant,
			oauth2.RefreshTokenGrant,
			oauth2.ClientCredentialsGrant,
			oauth2.PasswordGrant,
		},
		RedirectURIs:         []string{testRedirectURI},
		Scopes:               []string{"openid", "profile", "api1"},
		AllowOfflineAccess:   true,
		AllowRememberConsent: true,
	}))
	require.NoError(t, f.clientRepo.Upsert(&clients.Client{
		ID:           testPublicClientID,
		Type:         clients.ClientTypePublic,
		GrantTypes:   []oauth2.GrantType{oauth2.AuthorizationCodeGrant},
		RedirectURIs: []string{testRedirectURI},
		Scopes:       []string{"openid", "api1"},
	}))
	require.NoError(t, f.clientRepo.Upsert(&clients.Client{
		ID:         testDeviceClientID,
		Type:       clients.ClientTypePublic,
		GrantTypes: []oauth2.GrantType{oauth2.DeviceCodeGrant},
		Scopes:     []string{"openid", "api1"},
	}))

	resourceRepo := fakeresourcerepo.NewFakeResourceRepo(
		resources.Resource{Name: "openid", Type: resources.IdentityResource, ClaimTypes: []string{"sub"}},
		resources.Resource{Name: "profile", Type: resources.IdentityResource, ClaimTypes: []string{"name", "email"}},
		resources.Resource{Name: "api1", Type: resources.APIResource, ClaimTypes: []string{"role"}},
	)
	f.resourceValidator = resources.NewValidator(resourceRepo)

	f.store = memstore.New(memstore.WithNowFunc(f.nowFunc()))
	serializer := grants.NewSerializer()
	f.codes = grants.NewAuthorizationCodeStore(f.store, serializer, zerolog.Nop())
	f.refreshTokens = grants.NewRefreshTokenStore(f.store, serializer, zerolog.Nop())
	f.deviceCodes = grants.NewDeviceCodeStore(f.store, serializer, zerolog.Nop())
	f.consents = grants.NewConsentStore(f.store, serializer, zerolog.Nop())

	f.profile = &fakeProfile{inactive: map[string]bool{}}

	f.authorizeValidator = validation.NewAuthorizeRequestValidator(f.clientRepo, f.resourceValidator, zerolog.Nop())
	f.authorizeResponses = validation.NewAuthorizeResponseGenerator(f.codes, zerolog.Nop(), validation.WithAuthorizeNowFunc(f.nowFunc()))
	f.interaction = validation.NewInteractionGenerator(f.consents, zerolog.Nop(), validation.WithInteractionNowFunc(f.nowFunc()))
	f.deviceService = validation.NewDeviceGrantService(
		f.deviceCodes,
		f.resourceValidator,
		testVerificationURI,
		validation.WithDeviceNowFunc(f.nowFunc()),
	)
	return f
}

func (f *testFixture) mustGetClient(t *testing.T, id string) *clients.Client {
	t.Helper()
	client, err := f.clientRepo.Get(id)
	require.NoError(t, err)
	return client
}

func authorizeParams() url.Values {
	return url.Values{
		"client_id":     {testClientID},
		"redirect_uri":  {testRedirectURI},
		"response_type": {"code"},
		"scope":         {"openid api1"},
		"state":         {testState},
	}
}

func tokenRequest(t *testing.T, clientID, clientSecret string, form url.Values) *http.Request {
	t.Helper()
	if clientSecret == "" {
		// public clients identify themselves in the body only
		form.Set("client_id", clientID)
	}
	req, err := http.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientSecret != "" {
		req.SetBasicAuth(clientID, clientSecret)
	}
	return req
}

func requireProtocolError(t *testing.T, err error, code oauth2.ErrorCode) *oauth2.Error {
	t.Helper()
	var perr *oauth2.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, code, perr.Code)
	return perr
}

func testSubject(now time.Time) *subjects.Subject {
	return &subjects.Subject{
		ID:       testSubjectID,
		AuthTime: now,
		Claims:   subjects.Claims{{Type: "email", Value: "john.doe@example.com"}},
	}
}
