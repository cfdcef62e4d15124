package grants

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrCorruptGrant marks an envelope whose data field no longer deserializes
// into its typed payload. Callers treat such records as not-found; they never
// crash redemption.
var ErrCorruptGrant = errors.New("corrupt grant data")

// Serializer converts typed grant payloads to and from the envelope's data
// field. The mapping is exact-fidelity JSON: all claims round-trip as
// (type, value, valueType) triples, including claim types absent from any
// canonical list.
type Serializer struct{}

func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize encodes a typed payload for storage.
func (s *Serializer) Serialize(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Serializer.Serialize] marshal")
	}
	return data, nil
}

// Deserialize decodes envelope data into the typed payload. A decode failure
// is reported as ErrCorruptGrant.
func (s *Serializer) Deserialize(data []byte, payload any) error {
	if err := json.Unmarshal(data, payload); err != nil {
		return errors.Wrapf(ErrCorruptGrant, "deserialize: %v", err)
	}
	return nil
}
