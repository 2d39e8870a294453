// Package throttle provides throttle key derivation.
package throttle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// maxKeyLen bounds derived keys so store key-length limits are never hit.
// Longer composites collapse to a 128-bit content hash; collisions only make
// limiting more conservative.
const maxKeyLen = 200

// ErrNoIdentity indicates the identity carries no usable key axis.
var ErrNoIdentity = errors.New("identity has no usable key axis")

// DeriveKey builds a deterministic store key from scope and identity. The
// same inputs always yield the same key across process restarts.
func DeriveKey(scope string, id Identity, mode KeyMode) (string, error) {
	parts := []string{scope}
	switch mode {
	case KeyByTenant:
		if id.TenantID == "" {
			return "", ErrNoIdentity
		}
		parts = append(parts, "tenant", id.TenantID)
	case KeyByIP:
		if id.IP == "" {
			return "", ErrNoIdentity
		}
		parts = append(parts, "ip", id.IP)
	default:
		switch {
		case id.UserID != "":
			parts = append(parts, "user", id.UserID)
			if id.TenantID != "" {
				parts = append(parts, "tenant", id.TenantID)
			}
		case id.IP != "":
			parts = append(parts, "ip", id.IP)
		default:
			return "", ErrNoIdentity
		}
	}
	key := strings.Join(parts, ":")
	if len(key) > maxKeyLen {
		sum := sha256.Sum256([]byte(key))
		key = scope + ":" + hex.EncodeToString(sum[:16])
	}
	return key, nil
}
