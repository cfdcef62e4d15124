// Package grants implements persistence for single-use and session-scoped
// protocol grants. Typed payloads (authorization codes, refresh tokens, device
// codes, consent, reference tokens) travel inside a storage-neutral envelope
// keyed by an unguessable opaque handle.
package grants

import (
	"time"

	"github.com/pkg/errors"
)

// Grant type discriminators stored on the envelope.
const (
	TypeAuthorizationCode = "authorization_code"
	TypeRefreshToken      = "refresh_token"
	TypeDeviceCode        = "device_code"
	TypeReferenceToken    = "reference_token"
	TypeUserConsent       = "user_consent"
)

var (
	// ErrConflict is returned by Create when the handle already exists. The
	// store never silently overwrites; callers retry with a fresh handle.
	ErrConflict = errors.New("grant key already exists")

	// ErrNotFound covers unknown, removed and expired keys. Expiry is a
	// read-time filter, not a deletion guarantee.
	ErrNotFound = errors.New("grant not found")

	// ErrAlreadyConsumed is returned by Consume when the grant was consumed
	// before. Exactly one concurrent Consume of a key succeeds.
	ErrAlreadyConsumed = errors.New("grant already consumed")

	// ErrStoreUnavailable wraps backing-store faults. Surfaced to clients as
	// temporarily_unavailable.
	ErrStoreUnavailable = errors.New("grant store unavailable")
)

// PersistedGrant is the storage-neutral envelope. Key is globally unique and
// maps to exactly one live grant until removed or consumed.
type PersistedGrant struct {
	Key          string     `json:"key"`
	Type         string     `json:"type"`
	ClientID     string     `json:"clientId"`
	SubjectID    string     `json:"subjectId,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	Description  string     `json:"description,omitempty"`
	CreationTime time.Time  `json:"creationTime"`
	Expiration   time.Time  `json:"expiration"`
	ConsumedTime *time.Time `json:"consumedTime,omitempty"`
	Data         []byte     `json:"data"`
}

// Filter selects grants for bulk removal. Empty fields match everything.
type Filter struct {
	SubjectID string
	ClientID  string
	Type      string

	// Match is an optional payload-level predicate applied after the field
	// filters, for selections the envelope fields cannot express.
	Match func(g *PersistedGrant) bool
}

// Matches reports whether the grant satisfies the filter.
func (f Filter) Matches(g *PersistedGrant) bool {
	if f.SubjectID != "" && f.SubjectID != g.SubjectID {
		return false
	}
	if f.ClientID != "" && f.ClientID != g.ClientID {
		return false
	}
	if f.Type != "" && f.Type != g.Type {
		return false
	}
	if f.Match != nil && !f.Match(g) {
		return false
	}
	return true
}

// Store is the grant envelope store contract. Implementations must make
// Create atomic-on-conflict and Take/Consume linearizable per key: concurrent
// redemption attempts of the same handle result in exactly one success, all
// others observing ErrNotFound or ErrAlreadyConsumed.
type Store interface {
	// Create persists a new grant, failing with ErrConflict if the key exists.
	Create(grant *PersistedGrant) error

	// Get returns the grant for the key, ErrNotFound if unknown or expired.
	// Consumed grants are returned with ConsumedTime set.
	Get(key string) (*PersistedGrant, error)

	// Take atomically removes and returns the grant when its type matches
	// grantType (empty matches any). Used for single-use grants that are
	// deleted on redemption. A type mismatch reports ErrNotFound and leaves
	// the grant in place, so a handle presented to the wrong typed store
	// cannot destroy it.
	Take(key, grantType string) (*PersistedGrant, error)

	// Consume atomically marks the grant consumed and returns its prior
	// state, under the same type guard as Take. Used for grants kept around
	// for reuse detection.
	Consume(key, grantType string) (*PersistedGrant, error)

	// Remove deletes the grant. Removing an absent key is not an error.
	Remove(key string) error

	// RemoveAll deletes every grant matching the filter.
	RemoveAll(filter Filter) error
}
