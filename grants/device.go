package grants

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// userCodeAlphabet avoids characters users confuse when typing a code from a
// TV screen (0/O, 1/I/L).
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

// NewUserCode generates a short human-typable code ("XXXX-XXXX") for the
// device flow verification page.
func NewUserCode() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[NewUserCode] rand.Read")
	}
	code := make([]byte, 0, 9)
	for i, v := range b {
		if i == 4 {
			code = append(code, '-')
		}
		code = append(code, userCodeAlphabet[int(v)%len(userCodeAlphabet)])
	}
	return string(code), nil
}

// DeviceCodeStore persists device authorization grants. The device code is a
// random envelope handle; the user code reaches the same record through an
// alias envelope whose data is the device handle, so the whole flow lives in
// the one envelope schema.
type DeviceCodeStore struct {
	inner typedStore[DeviceCode]
}

func NewDeviceCodeStore(store Store, serializer *Serializer, logger zerolog.Logger) *DeviceCodeStore {
	return &DeviceCodeStore{inner: newTypedStore[DeviceCode](TypeDeviceCode, store, serializer, logger)}
}

// userCodeKey derives the alias envelope key. User codes are guessable, so
// the raw code never serves as a store key directly.
func userCodeKey(userCode string) string {
	h := sha256.Sum256([]byte("device_user_code:" + userCode))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Store persists a new device authorization and returns the device code.
func (s *DeviceCodeStore) Store(dc *DeviceCode) (string, error) {
	deviceCode, err := s.inner.create(dc, dc.ClientID, dc.SubjectID, "", dc.CreationTime, dc.Expiration())
	if err != nil {
		return "", err
	}

	err = s.inner.store.Create(&PersistedGrant{
		Key:          userCodeKey(dc.UserCode),
		Type:         TypeDeviceCode,
		ClientID:     dc.ClientID,
		CreationTime: dc.CreationTime,
		Expiration:   dc.Expiration(),
		Data:         []byte(deviceCode),
	})
	if errors.Is(err, ErrConflict) {
		// Another live grant holds this user code; roll back the device grant
		// so the caller can retry with a fresh user code.
		_ = s.inner.store.Remove(deviceCode)
		return "", ErrConflict
	}
	if err != nil {
		_ = s.inner.store.Remove(deviceCode)
		return "", err
	}
	return deviceCode, nil
}

// FindByDeviceCode returns the grant for a polling device.
func (s *DeviceCodeStore) FindByDeviceCode(deviceCode string) (*DeviceCode, error) {
	dc, _, err := s.inner.get(deviceCode)
	return dc, err
}

// FindByUserCode resolves the verification-page lookup.
func (s *DeviceCodeStore) FindByUserCode(userCode string) (*DeviceCode, string, error) {
	alias, err := s.inner.store.Get(userCodeKey(userCode))
	if err != nil {
		return nil, "", err
	}
	deviceCode := string(alias.Data)
	dc, _, err := s.inner.get(deviceCode)
	if err != nil {
		return nil, "", err
	}
	return dc, deviceCode, nil
}

// Update replaces the stored grant after an out-of-band user action
// (approval or denial).
func (s *DeviceCodeStore) Update(deviceCode string, dc *DeviceCode) error {
	data, err := s.inner.serializer.Serialize(dc)
	if err != nil {
		return err
	}
	if err := s.inner.store.Remove(deviceCode); err != nil {
		return err
	}
	return s.inner.store.Create(&PersistedGrant{
		Key:          deviceCode,
		Type:         TypeDeviceCode,
		ClientID:     dc.ClientID,
		SubjectID:    dc.SubjectID,
		CreationTime: dc.CreationTime,
		Expiration:   dc.Expiration(),
		Data:         data,
	})
}

// Consume redeems an authorized grant exactly once. A second consume returns
// ErrAlreadyConsumed; the record stays until expiry so the poll can report
// the terminal state instead of re-issuing tokens.
func (s *DeviceCodeStore) Consume(deviceCode string) (*DeviceCode, error) {
	dc, _, err := s.inner.consume(deviceCode)
	return dc, err
}

// Remove deletes the grant and its user-code alias.
func (s *DeviceCodeStore) Remove(deviceCode string) error {
	if dc, _, err := s.inner.get(deviceCode); err == nil {
		_ = s.inner.store.Remove(userCodeKey(dc.UserCode))
	}
	return s.inner.store.Remove(deviceCode)
}
