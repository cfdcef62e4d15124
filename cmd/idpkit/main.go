// Command idpkit wires the protocol core against in-memory stores and walks
// the authorization code, refresh token and device flows end to end. It is a
// demonstration harness; a real deployment mounts the validators behind its
// own HTTP endpoints and persistent stores.
package main

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/idpkit/idpkit/clients"
	fakeclientrepo "github.com/idpkit/idpkit/clients/fakerepo"
	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/grants/memstore"
	"github.com/idpkit/idpkit/internal/config"
	"github.com/idpkit/idpkit/keys"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	fakeresourcerepo "github.com/idpkit/idpkit/resources/fakerepo"
	"github.com/idpkit/idpkit/secrets"
	"github.com/idpkit/idpkit/subjects"
	"github.com/idpkit/idpkit/token"
	"github.com/idpkit/idpkit/validation"
)

const (
	demoClientID     = "demo-web"
	demoClientSecret = "demo-secret"
	demoDeviceClient = "demo-tv"
	demoRedirectURI  = "https://app.example.com/callback"
	demoCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running idpkit: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	core, err := buildCore(c, logger)
	if err != nil {
		return err
	}

	if err := core.runCodeFlow(); err != nil {
		return err
	}
	if err := core.runDeviceFlow(); err != nil {
		return err
	}
	return nil
}

// core holds the assembled pipeline for the demo walkthrough.
type core struct {
	logger zerolog.Logger

	clientRepo *fakeclientrepo.FakeClientRepo
	authorize  *validation.AuthorizeRequestValidator
	responses  *validation.AuthorizeResponseGenerator
	tokens     *validation.TokenRequestValidator
	device     *validation.DeviceGrantService
	generator  *token.ResponseGenerator
	validator  *token.Validator
	issuer     string
}

type demoProfile struct{}

func (demoProfile) GetClaims(subjectID string, _ []string) (subjects.Claims, error) {
	return subjects.Claims{
		{Type: "email", Value: subjectID + "@example.com"},
		{Type: "name", Value: "Demo User"},
	}, nil
}

func (demoProfile) IsActive(string) (bool, error) { return true, nil }

func demoSubject() *subjects.Subject {
	return &subjects.Subject{ID: "demo-user", AuthTime: time.Now(), IdP: "local", AMR: []string{"pwd"}}
}

func buildCore(c config.Config, logger zerolog.Logger) (*core, error) {
	sink := events.NewLogSink(logger)

	store := memstore.New()
	serializer := grants.NewSerializer()
	codes := grants.NewAuthorizationCodeStore(store, serializer, logger)
	refreshTokens := grants.NewRefreshTokenStore(store, serializer, logger)
	referenceTokens := grants.NewReferenceTokenStore(store, serializer, logger)
	deviceCodes := grants.NewDeviceCodeStore(store, serializer, logger)

	signingKey, err := keys.GenerateRSACredential("RS256", 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	keySvc := keys.NewService([]*keys.SigningCredential{signingKey}, keys.WithRetention(c.GetKeyRetention()))

	clientRepo := fakeclientrepo.NewFakeClientRepo()
	if err := registerClients(clientRepo, c); err != nil {
		return nil, err
	}

	resourceRepo := fakeresourcerepo.NewFakeResourceRepo(
		resources.Resource{Name: "openid", Type: resources.IdentityResource, ClaimTypes: []string{"email", "name"}},
		resources.Resource{Name: "api1", Type: resources.APIResource},
	)
	resourceValidator := resources.NewValidator(resourceRepo)

	issuer := c.GetIssuer()
	tokenService := token.NewService(issuer, keySvc, referenceTokens, logger, token.WithEventSink(sink))

	tokens := validation.NewTokenRequestValidator(
		clientRepo,
		resourceValidator,
		secrets.NewParserChain(logger),
		secrets.NewValidatorChain(logger),
		codes,
		refreshTokens,
		deviceCodes,
		demoProfile{},
		logger,
		validation.WithTokenEventSink(sink),
		validation.WithRefreshReuseDetection(c.GetRefreshReuseDetection()),
	)

	return &core{
		logger:     logger,
		clientRepo: clientRepo,
		authorize:  validation.NewAuthorizeRequestValidator(clientRepo, resourceValidator, logger),
		responses:  validation.NewAuthorizeResponseGenerator(codes, logger, validation.WithAuthorizeEventSink(sink)),
		tokens:     tokens,
		device: validation.NewDeviceGrantService(
			deviceCodes,
			resourceValidator,
			c.GetVerificationURI(),
			validation.WithDeviceInterval(c.GetDevicePollInterval()),
			validation.WithDeviceEventSink(sink),
		),
		generator: token.NewResponseGenerator(tokenService, refreshTokens, resourceRepo, demoProfile{}, logger),
		validator: token.NewValidator(issuer, keySvc, referenceTokens, logger),
		issuer:    issuer,
	}, nil
}

func registerClients(repo *fakeclientrepo.FakeClientRepo, c config.Config) error {
	web := &clients.Client{
		ID:      demoClientID,
		Name:    "Demo Web App",
		Type:    clients.ClientTypeConfidential,
		Secrets: []clients.Secret{{Value: demoClientSecret, Type: clients.SecretTypePlain}},
		GrantTypes: []oauth2.GrantType{
			oauth2.AuthorizationCodeGrant,
			oauth2.RefreshTokenGrant,
		},
		Scopes:                []string{"openid", "api1"},
		RedirectURIs:          []string{demoRedirectURI},
		AllowOfflineAccess:    true,
		AuthCodeLifetime:      c.GetAuthCodeLifetime(),
		AccessTokenLifetime:   c.GetAccessTokenLifetime(),
		IdentityTokenLifetime: c.GetIdentityTokenLifetime(),
		RefreshTokenLifetime:  c.GetRefreshTokenLifetime(),
	}
	tv := &clients.Client{
		ID:                 demoDeviceClient,
		Name:               "Demo TV App",
		Type:               clients.ClientTypePublic,
		GrantTypes:         []oauth2.GrantType{oauth2.DeviceCodeGrant},
		Scopes:             []string{"openid", "api1"},
		DeviceCodeLifetime: c.GetDeviceCodeLifetime(),
	}
	for _, c := range []*clients.Client{web, tv} {
		if err := repo.Upsert(c); err != nil {
			return fmt.Errorf("register client %q: %w", c.ID, err)
		}
	}
	return nil
}

// runCodeFlow drives an authorization code grant with PKCE and then rotates
// the refresh token it produced.
func (c *core) runCodeFlow() error {
	challenge := sha256.Sum256([]byte(demoCodeVerifier))

	params := url.Values{
		"client_id":             {demoClientID},
		"response_type":         {"code"},
		"redirect_uri":          {demoRedirectURI},
		"scope":                 {"openid api1 offline_access"},
		"state":                 {"demo-state"},
		"nonce":                 {"demo-nonce"},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(challenge[:])},
		"code_challenge_method": {"S256"},
	}

	authorizeReq, perr := c.authorize.Validate(params)
	if perr != nil {
		return fmt.Errorf("authorize request rejected: %w", perr)
	}

	// A deployment runs its login page here; the demo signs the user in
	// directly.
	authorizeReq.Subject = demoSubject()

	authorizeResp, err := c.responses.CreateResponse(authorizeReq)
	if err != nil {
		return fmt.Errorf("create authorization response: %w", err)
	}
	c.logger.Info().Str("redirect", authorizeResp.RedirectURL()).Msg("authorization code issued")

	tokenResp, err := c.redeem(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {authorizeResp.Code},
		"redirect_uri":  {demoRedirectURI},
		"code_verifier": {demoCodeVerifier},
	}, demoClientSecret)
	if err != nil {
		return err
	}

	validated, err := c.validator.ValidateToken(tokenResp.AccessToken, "api1")
	if err != nil {
		return fmt.Errorf("validate access token: %w", err)
	}
	c.logger.Info().
		Str("subject", validated.SubjectID).
		Str("scope", tokenResp.Scope).
		Bool("id_token", tokenResp.IdToken != "").
		Msg("access token validated")

	rotated, err := c.redeem(url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokenResp.RefreshToken},
	}, demoClientSecret)
	if err != nil {
		return err
	}
	c.logger.Info().Bool("rotated", rotated.RefreshToken != tokenResp.RefreshToken).Msg("refresh token rotated")
	return nil
}

// runDeviceFlow starts a device authorization, approves the user code and
// polls the token endpoint once.
func (c *core) runDeviceFlow() error {
	tv, err := c.clientRepo.Get(demoDeviceClient)
	if err != nil {
		return err
	}

	pending, err := c.device.Start(tv, "openid api1")
	if err != nil {
		return fmt.Errorf("start device flow: %w", err)
	}
	c.logger.Info().
		Str("user_code", pending.UserCode).
		Str("verification_uri", pending.VerificationURIComplete).
		Msg("device flow started")

	if err := c.device.Approve(pending.UserCode, demoSubject(), []string{"openid", "api1"}); err != nil {
		return fmt.Errorf("approve device code: %w", err)
	}

	tokenResp, err := c.redeem(url.Values{
		"grant_type":  {string(oauth2.DeviceCodeGrant)},
		"device_code": {pending.DeviceCode},
		"client_id":   {demoDeviceClient},
	}, "")
	if err != nil {
		return err
	}
	c.logger.Info().Str("scope", tokenResp.Scope).Msg("device flow complete")
	return nil
}

// redeem posts a form to the token request validator the way an HTTP token
// endpoint would, then mints the response for the validated grant.
func (c *core) redeem(form url.Values, clientSecret string) (*oauth2.TokenResponse, error) {
	req, err := http.NewRequest(http.MethodPost, c.issuer+"/connect/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if clientSecret != "" {
		req.SetBasicAuth(demoClientID, clientSecret)
	}

	result, err := c.tokens.ValidateRequest(req)
	if err != nil {
		return nil, fmt.Errorf("token request rejected: %w", err)
	}
	return c.generator.Process(result)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
