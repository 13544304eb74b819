package artifacts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Signer issues expiring download tokens for artifact names.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner signs with secret, or with a random per-process secret when it is empty.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if strings.TrimSpace(secret) == "" {
		secret = uuid.New().String()
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *Signer) mac(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign returns a token granting access to name until the signer's TTL elapses.
func (s *Signer) Sign(name string) string {
	expires := s.now().Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", name, expires)
	raw := fmt.Sprintf("%s:%s", payload, s.mac(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Verify checks that token was issued for name and has not expired.
func (s *Signer) Verify(name, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("missing download token")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	// The name may itself contain colons, so split from the right.
	raw := string(decoded)
	sigAt := strings.LastIndex(raw, ":")
	if sigAt < 0 {
		return errors.New("invalid token format")
	}
	payload, signature := raw[:sigAt], raw[sigAt+1:]
	expAt := strings.LastIndex(payload, ":")
	if expAt < 0 {
		return errors.New("invalid token format")
	}
	if payload[:expAt] != name {
		return errors.New("token does not match artifact")
	}
	expires, err := strconv.ParseInt(payload[expAt+1:], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid token expiration: %w", err)
	}
	if s.now().Unix() > expires {
		return errors.New("download token expired")
	}
	if !hmac.Equal([]byte(signature), []byte(s.mac(payload))) {
		return errors.New("invalid token signature")
	}
	return nil
}
