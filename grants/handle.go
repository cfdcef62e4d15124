package grants

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

const handleLength = 32 // 256 bits of entropy

// NewHandle generates an unguessable grant handle: 32 bytes from the
// cryptographically secure generator, URL-safe base64 without padding.
func NewHandle() (string, error) {
	b := make([]byte, handleLength)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[NewHandle] rand.Read")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
