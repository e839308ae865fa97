package session

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

const tokenRandomBytes = 8192

// GenerateAuthToken produces the one-time credential a client uses to
// authenticate directly against its container. The random component
// dominates, so tokens are unique per invocation even for the same
// session.
func (s *Session) GenerateAuthToken() (string, error) {
	random := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("token randomness: %w", err)
	}

	now := time.Now()
	source := fmt.Sprintf(
		"%s_%d_%d_%s_%s_%s",
		now.Format(time.RFC3339),
		now.Unix(),
		s.ID,
		s.ClientIP,
		s.ClientUserAgent,
		hex.EncodeToString(random),
	)

	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:]), nil
}
