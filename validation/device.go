package validation

import (
	"sync"
	"time"

	"github.com/idpkit/idpkit/clients"
	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/resources"
	"github.com/idpkit/idpkit/subjects"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	// DefaultDeviceInterval is the poll spacing handed to devices (RFC 8628
	// recommends 5 seconds).
	DefaultDeviceInterval = 5 * time.Second

	DefaultDeviceCodeLifetime = 10 * time.Minute

	userCodeRetries = 5
)

// DeviceThrottle enforces the per-device poll interval. A device polling
// faster than its interval gets slow_down until it backs off.
type DeviceThrottle struct {
	mu       sync.Mutex
	limiters *gocache.Cache
}

func NewDeviceThrottle() *DeviceThrottle {
	return &DeviceThrottle{
		limiters: gocache.New(DefaultDeviceCodeLifetime, 5*time.Minute),
	}
}

// Allow reports whether a poll for the given device code is within the
// allowed rate.
func (t *DeviceThrottle) Allow(deviceCode string, interval time.Duration) bool {
	if interval <= 0 {
		interval = DefaultDeviceInterval
	}

	t.mu.Lock()
	var limiter *rate.Limiter
	if cached, ok := t.limiters.Get(deviceCode); ok {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		t.limiters.Set(deviceCode, limiter, gocache.DefaultExpiration)
	}
	t.mu.Unlock()

	return limiter.Allow()
}

// validateDeviceCode handles a device poll at the token endpoint, walking the
// grant through its states: pending, denied, expired, authorized, and
// already redeemed.
func (v *TokenRequestValidator) validateDeviceCode(req *ValidatedTokenRequest) (*GrantValidationResult, error) {
	handle := req.Raw.Get("device_code")
	if handle == "" {
		return nil, oauth2.NewError(oauth2.ErrInvalidRequest, "device_code is missing")
	}

	dc, err := v.deviceCodes.FindByDeviceCode(handle)
	if errors.Is(err, grants.ErrNotFound) {
		// Unknown and lapsed codes are indistinguishable to the store once
		// expiry reclaims the record.
		return nil, oauth2.NewError(oauth2.ErrExpiredToken, "device_code is expired or unknown")
	}
	if err != nil {
		if perr := storeFailure(err); perr != nil {
			return nil, perr
		}
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateDeviceCode] lookup")
	}

	if dc.ClientID != req.Client.ID {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "device_code is invalid")
	}

	interval := time.Duration(dc.Interval) * time.Second
	if !v.throttle.Allow(handle, interval) {
		v.sink.Raise(events.Event{Type: events.TypeDeviceFlowThrottled, ClientID: req.Client.ID})
		return nil, oauth2.NewError(oauth2.ErrSlowDown, "polling too frequently")
	}

	if v.now().After(dc.Expiration()) {
		return nil, oauth2.NewError(oauth2.ErrExpiredToken, "device_code is expired or unknown")
	}

	switch dc.Status {
	case grants.DeviceCodePending:
		return nil, oauth2.NewError(oauth2.ErrAuthorizationPending, "")
	case grants.DeviceCodeDenied:
		return nil, oauth2.NewError(oauth2.ErrAccessDenied, "the user denied the request")
	case grants.DeviceCodeAuthorized:
		// fall through to redemption
	default:
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "device_code is invalid")
	}

	dc, err = v.deviceCodes.Consume(handle)
	if errors.Is(err, grants.ErrAlreadyConsumed) {
		return nil, oauth2.NewError(oauth2.ErrInvalidGrant, "device_code has already been used")
	}
	if err != nil {
		if perr := storeFailure(err); perr != nil {
			return nil, perr
		}
		return nil, errors.Wrap(err, "[TokenRequestValidator.validateDeviceCode] consume")
	}

	subject := &subjects.Subject{ID: dc.SubjectID, AuthTime: dc.AuthTime, Claims: dc.Claims}
	if perr, err := v.requireActiveSubject(subject.ID); err != nil {
		return nil, err
	} else if perr != nil {
		return nil, perr
	}

	v.sink.Raise(events.Event{
		Type:      events.TypeGrantRedeemed,
		ClientID:  req.Client.ID,
		SubjectID: dc.SubjectID,
		Details:   map[string]any{"grant_type": string(oauth2.DeviceCodeGrant)},
	})

	return &GrantValidationResult{
		Client:        req.Client,
		GrantType:     oauth2.DeviceCodeGrant,
		Subject:       subject,
		GrantedScopes: stripScope(dc.GrantedScopes, resources.OfflineAccessScope),
		OfflineAccess: containsScope(dc.GrantedScopes, resources.OfflineAccessScope),
	}, nil
}

// DeviceGrantService implements the device authorization endpoint and the
// verification-page actions.
type DeviceGrantService struct {
	deviceCodes     *grants.DeviceCodeStore
	resources       *resources.Validator
	verificationURI string
	interval        time.Duration
	sink            events.Sink
	now             func() time.Time
}

type DeviceGrantOption func(*DeviceGrantService)

func WithDeviceNowFunc(now func() time.Time) DeviceGrantOption {
	return func(s *DeviceGrantService) {
		s.now = now
	}
}

func WithDeviceEventSink(sink events.Sink) DeviceGrantOption {
	return func(s *DeviceGrantService) {
		s.sink = sink
	}
}

func WithDeviceInterval(interval time.Duration) DeviceGrantOption {
	return func(s *DeviceGrantService) {
		s.interval = interval
	}
}

func NewDeviceGrantService(deviceCodes *grants.DeviceCodeStore, resourceValidator *resources.Validator, verificationURI string, options ...DeviceGrantOption) *DeviceGrantService {
	s := &DeviceGrantService{
		deviceCodes:     deviceCodes,
		resources:       resourceValidator,
		verificationURI: verificationURI,
		interval:        DefaultDeviceInterval,
		sink:            events.NopSink{},
		now:             time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start validates a device authorization request and creates the pending
// grant. User codes are short and collisions with live grants are possible,
// so creation retries with a fresh code.
func (s *DeviceGrantService) Start(client *clients.Client, rawScopes string) (*oauth2.DeviceAuthorizationResponse, error) {
	if !client.AllowsGrantType(oauth2.DeviceCodeGrant) {
		return nil, oauth2.NewError(oauth2.ErrUnauthorizedClient, "client is not allowed to use the device flow")
	}

	validated, err := s.resources.ParseAndValidate(client, rawScopes)
	if err != nil {
		var parseErr *resources.ParseError
		if errors.As(err, &parseErr) {
			return nil, oauth2.NewError(oauth2.ErrInvalidScope, parseErr.Error())
		}
		return nil, errors.Wrap(err, "[DeviceGrantService.Start] validate scopes")
	}

	lifetime := client.DeviceCodeLifetime
	if lifetime <= 0 {
		lifetime = DefaultDeviceCodeLifetime
	}

	scopes := splitScopes(validated.ScopeString())

	for attempt := 0; attempt < userCodeRetries; attempt++ {
		userCode, err := grants.NewUserCode()
		if err != nil {
			return nil, err
		}
		dc := &grants.DeviceCode{
			ClientID:        client.ID,
			UserCode:        userCode,
			Status:          grants.DeviceCodePending,
			RequestedScopes: scopes,
			Interval:        int(s.interval / time.Second),
			CreationTime:    s.now(),
			Lifetime:        lifetime,
		}
		deviceCode, err := s.deviceCodes.Store(dc)
		if errors.Is(err, grants.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "[DeviceGrantService.Start] store device code")
		}

		s.sink.Raise(events.Event{Type: events.TypeDeviceFlowStarted, ClientID: client.ID})

		return &oauth2.DeviceAuthorizationResponse{
			DeviceCode:              deviceCode,
			UserCode:                userCode,
			VerificationURI:         s.verificationURI,
			VerificationURIComplete: s.verificationURI + "?user_code=" + userCode,
			ExpiresIn:               int(lifetime / time.Second),
			Interval:                dc.Interval,
		}, nil
	}
	return nil, errors.Wrap(grants.ErrStoreUnavailable, "repeated user code conflicts")
}

// FindByUserCode resolves a grant for the verification page.
func (s *DeviceGrantService) FindByUserCode(userCode string) (*grants.DeviceCode, error) {
	dc, _, err := s.deviceCodes.FindByUserCode(userCode)
	return dc, err
}

// Approve records the user's approval. The granted scopes may be narrower
// than requested.
func (s *DeviceGrantService) Approve(userCode string, subject *subjects.Subject, grantedScopes []string) error {
	dc, deviceCode, err := s.deviceCodes.FindByUserCode(userCode)
	if err != nil {
		return err
	}
	if dc.Status != grants.DeviceCodePending {
		return errors.New("device authorization is no longer pending")
	}

	for _, scope := range grantedScopes {
		if !containsScope(dc.RequestedScopes, scope) {
			return errors.Errorf("scope %q was not requested", scope)
		}
	}

	dc.Status = grants.DeviceCodeAuthorized
	dc.SubjectID = subject.ID
	dc.Claims = subject.Claims
	dc.AuthTime = subject.AuthTime
	dc.GrantedScopes = grantedScopes
	return s.deviceCodes.Update(deviceCode, dc)
}

// Deny records the user's denial.
func (s *DeviceGrantService) Deny(userCode string) error {
	dc, deviceCode, err := s.deviceCodes.FindByUserCode(userCode)
	if err != nil {
		return err
	}
	if dc.Status != grants.DeviceCodePending {
		return errors.New("device authorization is no longer pending")
	}
	dc.Status = grants.DeviceCodeDenied
	return s.deviceCodes.Update(deviceCode, dc)
}
