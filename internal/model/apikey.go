package model

import "time"

// secretPrefixLen is how many leading characters of a secret may be
// shown after creation. The full value is displayed exactly once.
const secretPrefixLen = 12

// APIKey represents an API credential gating write and management operations.
// Secret carries the full plaintext value only on the instance returned by
// creation; listings expose SecretPrefix() instead.
type APIKey struct {
	ID         int64      `json:"id" db:"id"`
	Secret     string     `json:"-" db:"secret"`
	Name       string     `json:"name" db:"name"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Revoked    bool       `json:"revoked" db:"revoked"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	UseCount   int64      `json:"use_count" db:"use_count"`
}

// Live reports whether the credential may authenticate at the given instant:
// not revoked and not past its expiry (a nil expiry never expires).
func (k *APIKey) Live(now time.Time) bool {
	if k.Revoked {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// Expired reports whether the credential has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// SecretPrefix returns the displayable leading slice of the secret.
func (k *APIKey) SecretPrefix() string {
	if len(k.Secret) <= secretPrefixLen {
		return k.Secret
	}
	return k.Secret[:secretPrefixLen] + "..."
}
