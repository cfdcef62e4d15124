package keys

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrNoSigningKey means no active signing credential satisfies the request.
// Fatal for token issuance until an operator fixes key configuration.
var ErrNoSigningKey = errors.New("no signing key available")

type retiredKey struct {
	key       SecurityKeyInfo
	retiredAt time.Time
}

// Service holds the active signing credentials and the validation key
// superset. The active set is read-mostly and hot-swapped atomically on
// rotation; retired keys stay in the validation set for the retention window
// so tokens signed before rotation still validate.
type Service struct {
	mu        sync.RWMutex
	active    []*SigningCredential
	retired   []retiredKey
	retention time.Duration
	now       func() time.Time
}

type ServiceOption func(*Service)

// WithRetention bounds how long a retired key stays in the validation set.
// It should be at least the maximum token lifetime in the system.
func WithRetention(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.retention = d
	}
}

// WithNowFunc overrides the rotation clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(active []*SigningCredential, options ...ServiceOption) *Service {
	s := &Service{
		active:    active,
		retention: 30 * 24 * time.Hour,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// SigningCredentials returns all active signing credentials.
func (s *Service) SigningCredentials() []*SigningCredential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SigningCredential, len(s.active))
	copy(out, s.active)
	return out
}

// SigningCredential selects the first active credential whose algorithm is in
// the allowed set, or the first active credential if no restriction is given.
func (s *Service) SigningCredential(allowedAlgorithms []string) (*SigningCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.active) == 0 {
		return nil, ErrNoSigningKey
	}
	if len(allowedAlgorithms) == 0 {
		return s.active[0], nil
	}
	for _, cred := range s.active {
		for _, alg := range allowedAlgorithms {
			if cred.Algorithm == alg {
				return cred, nil
			}
		}
	}
	return nil, errors.Wrapf(ErrNoSigningKey, "no credential for algorithms %v", allowedAlgorithms)
}

// ValidationKeys returns the validation superset: every active credential plus
// retired keys still inside the retention window.
func (s *Service) ValidationKeys() []SecurityKeyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().Add(-s.retention)
	out := make([]SecurityKeyInfo, 0, len(s.active)+len(s.retired))
	for _, cred := range s.active {
		out = append(out, cred.ValidationKey())
	}
	for _, r := range s.retired {
		if r.retiredAt.After(cutoff) {
			out = append(out, r.key)
		}
	}
	return out
}

// Rotate replaces the active signing set. The previous credentials move to the
// retired validation set; retired keys past retention are pruned.
func (s *Service) Rotate(next []*SigningCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.retention)

	kept := s.retired[:0]
	for _, r := range s.retired {
		if r.retiredAt.After(cutoff) {
			kept = append(kept, r)
		}
	}
	nextIDs := make(map[string]bool, len(next))
	for _, cred := range next {
		nextIDs[cred.KeyID] = true
	}
	for _, cred := range s.active {
		if !nextIDs[cred.KeyID] {
			kept = append(kept, retiredKey{key: cred.ValidationKey(), retiredAt: now})
		}
	}
	s.retired = kept
	s.active = next
}

// JWKS publishes the asymmetric validation keys as a JSON Web Key Set.
func (s *Service) JWKS() (*JWKS, error) {
	set := &JWKS{}
	for _, k := range s.ValidationKeys() {
		jwk, err := k.ToJWK()
		if err != nil {
			continue // symmetric keys are not published
		}
		set.Keys = append(set.Keys, *jwk)
	}
	return set, nil
}
