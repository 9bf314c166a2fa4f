package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"gitea.jw6.us/james/crmdesk/internal/store"
)

const tokenBytes = 32

// generateToken returns 256 random bits as lowercase hex.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// hashToken is the at-rest form of a bearer token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newSession(token, userID string, now time.Time, ttl time.Duration) store.Session {
	return store.Session{
		TokenHash: hashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// purgeExpired drops sessions that are expired at now and returns how many
// were removed.
func purgeExpired(d *store.Dataset, now time.Time) int {
	kept := d.Sessions[:0]
	for _, sess := range d.Sessions {
		if !sess.Expired(now) {
			kept = append(kept, sess)
		}
	}
	purged := len(d.Sessions) - len(kept)
	d.Sessions = kept
	return purged
}
