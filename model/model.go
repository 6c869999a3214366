package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// DeterministicID derives a stable identifier from its parts, for workflows whose
// uniqueness is defined by who is involved rather than by a caller-chosen id.
func DeterministicID(module string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		// length prefix keeps ("ab","c") and ("a","bc") apart
		_, _ = fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return fmt.Sprintf("%s_%s", module, hex.EncodeToString(h.Sum(nil))[:32])
}

// TipID is the instance id of the single tip a sender may give a recipient on a post.
func TipID(sender, recipient, postID string) string {
	return DeterministicID("tip", sender, recipient, postID)
}

// SubscriptionID is the instance id of a subscriber's subscription.
func SubscriptionID(subscriber string) string {
	return DeterministicID("sub", subscriber)
}

func NormalizeIdentity(identity string) string {
	return strings.TrimSpace(identity)
}
