package validation

import (
	"time"

	"github.com/idpkit/idpkit/events"
	"github.com/idpkit/idpkit/grants"
	"github.com/idpkit/idpkit/oauth2"
	"github.com/idpkit/idpkit/subjects"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// InteractionKind is the decision of the interaction generator.
type InteractionKind string

const (
	InteractionProceed        InteractionKind = "proceed"
	InteractionRequireLogin   InteractionKind = "login"
	InteractionRequireConsent InteractionKind = "consent"
	InteractionError          InteractionKind = "error"
)

// Interaction is the outcome: proceed with issuance, detour to login or
// consent, or fail.
type Interaction struct {
	Kind  InteractionKind
	Error *oauth2.Error
}

// ConsentResponse carries the user's answer from the consent UI.
type ConsentResponse struct {
	Granted bool
	// Scopes the user approved; may be narrower than requested.
	Scopes   []string
	Remember bool
}

// InteractionGenerator decides whether login, consent, or an error must
// interrupt an authorize flow.
type InteractionGenerator struct {
	consent *grants.ConsentStore
	sink    events.Sink
	logger  zerolog.Logger
	now     func() time.Time
}

type InteractionOption func(*InteractionGenerator)

func WithInteractionNowFunc(now func() time.Time) InteractionOption {
	return func(g *InteractionGenerator) {
		g.now = now
	}
}

func WithInteractionEventSink(sink events.Sink) InteractionOption {
	return func(g *InteractionGenerator) {
		g.sink = sink
	}
}

func NewInteractionGenerator(consent *grants.ConsentStore, logger zerolog.Logger, options ...InteractionOption) *InteractionGenerator {
	g := &InteractionGenerator{
		consent: consent,
		sink:    events.NopSink{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Process evaluates the validated request against the current subject and an
// optional consent answer. With prompt=none every interactive outcome turns
// into an error, since no UI can be shown.
func (g *InteractionGenerator) Process(req *ValidatedAuthorizeRequest, subject *subjects.Subject, consentResponse *ConsentResponse) (*Interaction, error) {
	if loginNeeded(req, subject, g.now()) {
		if req.Prompt == oauth2.PromptNone {
			return errorInteraction(oauth2.ErrLoginRequired, req.State), nil
		}
		return &Interaction{Kind: InteractionRequireLogin}, nil
	}

	if consentResponse != nil {
		return g.processConsentResponse(req, subject, consentResponse)
	}

	needed, err := g.consentNeeded(req, subject)
	if err != nil {
		return nil, err
	}
	if needed {
		if req.Prompt == oauth2.PromptNone {
			return errorInteraction(oauth2.ErrConsentRequired, req.State), nil
		}
		return &Interaction{Kind: InteractionRequireConsent}, nil
	}
	return &Interaction{Kind: InteractionProceed}, nil
}

func loginNeeded(req *ValidatedAuthorizeRequest, subject *subjects.Subject, now time.Time) bool {
	if !subject.IsAuthenticated() {
		return true
	}
	if req.Prompt == oauth2.PromptLogin || req.Prompt == oauth2.PromptSelectAccount {
		return true
	}
	if req.MaxAge != nil && now.Sub(subject.AuthTime) > *req.MaxAge {
		return true
	}
	return false
}

func (g *InteractionGenerator) consentNeeded(req *ValidatedAuthorizeRequest, subject *subjects.Subject) (bool, error) {
	if !req.Client.RequireConsent {
		return false, nil
	}
	if req.Prompt == oauth2.PromptConsent {
		return true, nil
	}

	record, err := g.consent.Load(subject.ID, req.Client.ID)
	if errors.Is(err, grants.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "[InteractionGenerator.Process] load consent")
	}
	if record.Expired(g.now()) || !record.CoversScopes(req.Resources.ScopeNames()) {
		return true, nil
	}
	return false, nil
}

func (g *InteractionGenerator) processConsentResponse(req *ValidatedAuthorizeRequest, subject *subjects.Subject, response *ConsentResponse) (*Interaction, error) {
	if !response.Granted {
		g.sink.Raise(events.Event{
			Type:      events.TypeAuthorizeFailed,
			ClientID:  req.Client.ID,
			SubjectID: subject.ID,
			Details:   map[string]any{"reason": "consent_denied"},
		})
		return errorInteraction(oauth2.ErrAccessDenied, req.State), nil
	}

	// The user may approve fewer scopes than requested. Narrow the request
	// to the consented set so the issued code carries only approved scopes;
	// approving none of them is a denial.
	narrowed := req.Resources.Narrow(response.Scopes)
	if len(narrowed.ParsedScopes) == 0 {
		g.sink.Raise(events.Event{
			Type:      events.TypeAuthorizeFailed,
			ClientID:  req.Client.ID,
			SubjectID: subject.ID,
			Details:   map[string]any{"reason": "consent_denied"},
		})
		return errorInteraction(oauth2.ErrAccessDenied, req.State), nil
	}
	req.Resources = narrowed

	if response.Remember && req.Client.AllowRememberConsent {
		record := &grants.ConsentRecord{
			SubjectID:    subject.ID,
			ClientID:     req.Client.ID,
			Scopes:       narrowed.ScopeNames(),
			CreationTime: g.now(),
		}
		if req.Client.ConsentLifetime > 0 {
			record.Expiration = record.CreationTime.Add(req.Client.ConsentLifetime)
		}
		if err := g.consent.Store(record); err != nil {
			return nil, errors.Wrap(err, "[InteractionGenerator.Process] store consent")
		}
		g.sink.Raise(events.Event{
			Type:      events.TypeConsentGranted,
			ClientID:  req.Client.ID,
			SubjectID: subject.ID,
			Details:   map[string]any{"scopes": narrowed.ScopeNames()},
		})
	}
	return &Interaction{Kind: InteractionProceed}, nil
}

func errorInteraction(code oauth2.ErrorCode, state string) *Interaction {
	return &Interaction{
		Kind:  InteractionError,
		Error: oauth2.NewRedirectableError(code, "", state),
	}
}
