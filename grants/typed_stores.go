package grants

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// createRetries bounds handle regeneration on store conflicts. With 256-bit
// handles a single conflict already indicates a store problem.
const createRetries = 3

// typedStore binds a payload type to its envelope discriminator and handles
// serialization, handle generation and the corrupt-record-as-not-found rule.
type typedStore[T any] struct {
	grantType  string
	store      Store
	serializer *Serializer
	logger     zerolog.Logger
}

func newTypedStore[T any](grantType string, store Store, serializer *Serializer, logger zerolog.Logger) typedStore[T] {
	return typedStore[T]{
		grantType:  grantType,
		store:      store,
		serializer: serializer,
		logger:     logger.With().Str("grant_type", grantType).Logger(),
	}
}

func (s *typedStore[T]) create(payload *T, clientID, subjectID, sessionID string, creation time.Time, expiration time.Time) (string, error) {
	data, err := s.serializer.Serialize(payload)
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < createRetries; attempt++ {
		key, err := NewHandle()
		if err != nil {
			return "", err
		}
		err = s.store.Create(&PersistedGrant{
			Key:          key,
			Type:         s.grantType,
			ClientID:     clientID,
			SubjectID:    subjectID,
			SessionID:    sessionID,
			CreationTime: creation,
			Expiration:   expiration,
			Data:         data,
		})
		if errors.Is(err, ErrConflict) {
			s.logger.Warn().Msg("grant handle collision, retrying with fresh handle")
			continue
		}
		if err != nil {
			return "", err
		}
		return key, nil
	}
	return "", errors.Wrap(ErrStoreUnavailable, "repeated handle conflicts")
}

func (s *typedStore[T]) decode(grant *PersistedGrant, err error) (*T, *PersistedGrant, error) {
	if err != nil {
		return nil, nil, err
	}
	if grant.Type != s.grantType {
		return nil, nil, ErrNotFound
	}
	payload := new(T)
	if derr := s.serializer.Deserialize(grant.Data, payload); derr != nil {
		s.logger.Warn().Str("key", grant.Key).Err(derr).Msg("corrupt grant treated as not found")
		_ = s.store.Remove(grant.Key)
		return nil, nil, ErrNotFound
	}
	return payload, grant, nil
}

func (s *typedStore[T]) get(key string) (*T, *PersistedGrant, error) {
	g, err := s.store.Get(key)
	return s.decode(g, err)
}

func (s *typedStore[T]) take(key string) (*T, *PersistedGrant, error) {
	g, err := s.store.Take(key, s.grantType)
	return s.decode(g, err)
}

func (s *typedStore[T]) consume(key string) (*T, *PersistedGrant, error) {
	g, err := s.store.Consume(key, s.grantType)
	return s.decode(g, err)
}

// AuthorizationCodeStore persists authorization codes. Codes are removed from
// the envelope store the moment they are redeemed, before any further
// validation, so a concurrent redemption observes not-found.
type AuthorizationCodeStore struct {
	inner typedStore[AuthorizationCode]
}

func NewAuthorizationCodeStore(store Store, serializer *Serializer, logger zerolog.Logger) *AuthorizationCodeStore {
	return &AuthorizationCodeStore{inner: newTypedStore[AuthorizationCode](TypeAuthorizationCode, store, serializer, logger)}
}

func (s *AuthorizationCodeStore) Store(code *AuthorizationCode) (string, error) {
	return s.inner.create(code, code.ClientID, code.SubjectID, code.SessionID, code.CreationTime, code.Expiration())
}

func (s *AuthorizationCodeStore) Get(key string) (*AuthorizationCode, error) {
	code, _, err := s.inner.get(key)
	return code, err
}

// Take redeems the code: atomic remove-and-return.
func (s *AuthorizationCodeStore) Take(key string) (*AuthorizationCode, error) {
	code, _, err := s.inner.take(key)
	return code, err
}

func (s *AuthorizationCodeStore) Remove(key string) error {
	return s.inner.store.Remove(key)
}

// RefreshTokenStore persists refresh tokens. Two redemption modes:
//   - rotation only: Take deletes the presented handle.
//   - reuse detection: Consume marks the handle consumed but keeps the record;
//     a second presentation is then distinguishable from an unknown handle and
//     triggers family revocation.
type RefreshTokenStore struct {
	inner typedStore[RefreshToken]
}

func NewRefreshTokenStore(store Store, serializer *Serializer, logger zerolog.Logger) *RefreshTokenStore {
	return &RefreshTokenStore{inner: newTypedStore[RefreshToken](TypeRefreshToken, store, serializer, logger)}
}

func (s *RefreshTokenStore) Store(token *RefreshToken) (string, error) {
	return s.inner.create(token, token.ClientID, token.SubjectID, token.SessionID, token.CreationTime, token.Expiration())
}

// Get returns the token and whether it has already been consumed.
func (s *RefreshTokenStore) Get(key string) (*RefreshToken, bool, error) {
	token, grant, err := s.inner.get(key)
	if err != nil {
		return nil, false, err
	}
	return token, grant.ConsumedTime != nil, nil
}

func (s *RefreshTokenStore) Take(key string) (*RefreshToken, error) {
	token, _, err := s.inner.take(key)
	return token, err
}

func (s *RefreshTokenStore) Consume(key string) (*RefreshToken, error) {
	token, _, err := s.inner.consume(key)
	return token, err
}

func (s *RefreshTokenStore) Remove(key string) error {
	return s.inner.store.Remove(key)
}

// RevokeFamily removes every refresh token descended from the same original
// grant. Members are matched by decoding the stored payload, so other
// families the subject holds with the client survive. An empty familyID
// revokes them all.
func (s *RefreshTokenStore) RevokeFamily(subjectID, clientID, familyID string) error {
	filter := Filter{
		SubjectID: subjectID,
		ClientID:  clientID,
		Type:      TypeRefreshToken,
	}
	if familyID != "" {
		filter.Match = func(g *PersistedGrant) bool {
			var token RefreshToken
			if err := s.inner.serializer.Deserialize(g.Data, &token); err != nil {
				return true // corrupt members go with the family
			}
			return token.FamilyID == familyID
		}
	}
	return s.inner.store.RemoveAll(filter)
}

// ReferenceTokenStore persists opaque access tokens redeemable at the
// introspection endpoint.
type ReferenceTokenStore struct {
	inner typedStore[ReferenceToken]
}

func NewReferenceTokenStore(store Store, serializer *Serializer, logger zerolog.Logger) *ReferenceTokenStore {
	return &ReferenceTokenStore{inner: newTypedStore[ReferenceToken](TypeReferenceToken, store, serializer, logger)}
}

func (s *ReferenceTokenStore) Store(token *ReferenceToken) (string, error) {
	return s.inner.create(token, token.ClientID, token.SubjectID, token.SessionID, token.CreationTime, token.Expiration())
}

func (s *ReferenceTokenStore) Get(key string) (*ReferenceToken, error) {
	token, _, err := s.inner.get(key)
	return token, err
}

func (s *ReferenceTokenStore) Remove(key string) error {
	return s.inner.store.Remove(key)
}

// RemoveAllForSubject revokes every reference token for a subject/client pair.
func (s *ReferenceTokenStore) RemoveAllForSubject(subjectID, clientID string) error {
	return s.inner.store.RemoveAll(Filter{
		SubjectID: subjectID,
		ClientID:  clientID,
		Type:      TypeReferenceToken,
	})
}
