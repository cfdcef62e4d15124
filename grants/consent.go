package grants

import (
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ConsentStore persists subject-to-client consent inside the grant envelope
// store. The envelope key is derived deterministically from (subject, client)
// so that a renewed consent replaces the previous record.
type ConsentStore struct {
	inner typedStore[ConsentRecord]
}

func NewConsentStore(store Store, serializer *Serializer, logger zerolog.Logger) *ConsentStore {
	return &ConsentStore{inner: newTypedStore[ConsentRecord](TypeUserConsent, store, serializer, logger)}
}

func consentKey(subjectID, clientID string) string {
	h := sha256.Sum256([]byte("user_consent:" + subjectID + ":" + clientID))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Store saves or replaces the consent record for (subject, client).
func (s *ConsentStore) Store(consent *ConsentRecord) error {
	data, err := s.inner.serializer.Serialize(consent)
	if err != nil {
		return err
	}

	key := consentKey(consent.SubjectID, consent.ClientID)
	expiration := consent.Expiration
	if expiration.IsZero() {
		// Non-expiring consent still needs an envelope expiry; push it far out.
		expiration = consent.CreationTime.Add(100 * 365 * 24 * time.Hour)
	}

	// The envelope store never overwrites, so replace explicitly.
	if err := s.inner.store.Remove(key); err != nil {
		return errors.Wrap(err, "[ConsentStore.Store] remove previous consent")
	}
	return s.inner.store.Create(&PersistedGrant{
		Key:          key,
		Type:         TypeUserConsent,
		ClientID:     consent.ClientID,
		SubjectID:    consent.SubjectID,
		CreationTime: consent.CreationTime,
		Expiration:   expiration,
		Data:         data,
	})
}

// Load returns the consent for (subject, client), ErrNotFound when absent or
// expired.
func (s *ConsentStore) Load(subjectID, clientID string) (*ConsentRecord, error) {
	consent, _, err := s.inner.get(consentKey(subjectID, clientID))
	return consent, err
}

// Remove withdraws the consent for (subject, client).
func (s *ConsentStore) Remove(subjectID, clientID string) error {
	return s.inner.store.Remove(consentKey(subjectID, clientID))
}
