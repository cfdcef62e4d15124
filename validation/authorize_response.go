package validation

import (
	"net/url"
	"strings"
	"time"

	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultAuthCodeLifetime = 5 * time.Minute

// AuthorizeResponse is the successful outcome of an authorize request: the
// parameters to deliver back to the client's redirect URI.
type AuthorizeResponse struct {
	RedirectURI  string
	ResponseMode oauth2.ResponseModeType
	Code         string
	State        string
	Scope        string
}

// Params returns the response parameters in wire form.
func (r *AuthorizeResponse) Params() url.Values {
	params := url.Values{}
	if r.Code != "" {
		params.Set("code", r.Code)
	}
	if r.State != "" {
		params.Set("state", r.State)
	}
	if r.Scope != "" {
		params.Set("scope", r.Scope)
	}
	return params
}

// RedirectURL encodes the parameters onto the redirect URI, in the query or
// fragment per the response mode. form_post responses are rendered by the
// caller from Params instead.
func (r *AuthorizeResponse) RedirectURL() string {
	return encodeRedirect(r.RedirectURI, r.ResponseMode, r.Params())
}

// ErrorRedirectURL encodes a redirectable protocol error onto the redirect
// URI. Non-redirectable errors must never reach this; they render locally.
func ErrorRedirectURL(redirectURI string, responseMode oauth2.ResponseModeType, perr *oauth2.Error) string {
	params := url.Values{}
	params.Set("error", string(perr.Code))
	if perr.Description != "" {
		params.Set("error_description", perr.Description)
	}
	if perr.State != "" {
		params.Set("state", perr.State)
	}
	return encodeRedirect(redirectURI, responseMode, params)
}

func encodeRedirect(redirectURI string, mode oauth2.ResponseModeType, params url.Values) string {
	sep := "?"
	if mode == oauth2.FragmentResponseMode {
		sep = "#"
	} else if strings.Contains(redirectURI, "?") {
		sep = "&"
	}
	return redirectURI + sep + params.Encode()
}

// AuthorizeResponseGenerator issues authorization codes for validated and
// approved authorize requests.
type AuthorizeResponseGenerator struct {
	codes  *grants.AuthorizationCodeStore
	sink   events.Sink
	logger zerolog.Logger
	now    func() time.Time
}

type AuthorizeResponseOption func(*AuthorizeResponseGenerator)

func WithAuthorizeNowFunc(now func() time.Time) AuthorizeResponseOption {
	return func(g *AuthorizeResponseGenerator) {
		g.now = now
	}
}

func WithAuthorizeEventSink(sink events.Sink) AuthorizeResponseOption {
	return func(g *AuthorizeResponseGenerator) {
		g.sink = sink
	}
}

func NewAuthorizeResponseGenerator(codes *grants.AuthorizationCodeStore, logger zerolog.Logger, options ...AuthorizeResponseOption) *AuthorizeResponseGenerator {
	g := &AuthorizeResponseGenerator{
		codes:  codes,
		sink:   events.NopSink{},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// CreateResponse stores a new authorization code bound to the request and
// subject. The request must have passed validation and interaction
// processing, with an authenticated subject attached.
func (g *AuthorizeResponseGenerator) CreateResponse(req *ValidatedAuthorizeRequest) (*AuthorizeResponse, error) {
	if !req.Subject.IsAuthenticated() {
		return nil, errors.New("[AuthorizeResponseGenerator.CreateResponse] no authenticated subject")
	}

	lifetime := req.Client.AuthCodeLifetime
	if lifetime <= 0 {
		lifetime = defaultAuthCodeLifetime
	}

	scope := req.Resources.ScopeString()
	code := &grants.AuthorizationCode{
		ClientID:            req.Client.ID,
		SubjectID:           req.Subject.ID,
		Claims:              req.Subject.Claims,
		AuthTime:            req.Subject.AuthTime,
		RedirectURI:         req.RedirectURI,
		Nonce:               req.Nonce,
		GrantedScopes:       splitScopes(scope),
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		CreationTime:        g.now(),
		Lifetime:            lifetime,
	}

	handle, err := g.codes.Store(code)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizeResponseGenerator.CreateResponse] store code")
	}

	g.logger.Debug().Str("client_id", req.Client.ID).Msg("authorization code issued")

	return &AuthorizeResponse{
		RedirectURI:  req.RedirectURI,
		ResponseMode: req.ResponseMode,
		Code:         handle,
		State:        req.State,
		Scope:        scope,
	}, nil
}
