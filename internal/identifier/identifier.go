// Package identifier generates collision-resistant, human-typeable
// identifiers for long-lived engine objects (targets, pending syncs,
// conflicts). Identifiers are prefixed so that their kind is visible at a
// glance in logs and CLI output.
package identifier

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mrsimpson/piddie-sub002/internal/encoding"
)

const (
	// PrefixTarget is the prefix used for sync target identifiers.
	PrefixTarget = "trgt"
	// PrefixPendingSync is the prefix used for pending-sync identifiers.
	PrefixPendingSync = "pend"
	// PrefixConflict is the prefix used for conflict identifiers.
	PrefixConflict = "cnfl"

	// requiredPrefixLength is the required length for identifier prefixes.
	requiredPrefixLength = 4
	// collisionResistantLength is the number of random bytes used to
	// ensure collision-resistance in an identifier.
	collisionResistantLength = 32
	// targetBase62Length is the target length for the Base62-encoded
	// portion of the identifier, computed as
	// ceil(n*8*ln(2)/ln(62)) for n = collisionResistantLength.
	targetBase62Length = 43
)

// matcher is a regular expression that matches identifiers produced by
// New.
var matcher = regexp.MustCompile("^[a-z]{4}_[0-9a-zA-Z]{43}$")

// New generates a new collision-resistant identifier with the specified
// prefix. The prefix must have a length of requiredPrefixLength.
func New(prefix string) (string, error) {
	if len(prefix) != requiredPrefixLength {
		return "", errors.New("incorrect prefix length")
	}
	for _, r := range prefix {
		if !('a' <= r && r <= 'z') {
			return "", errors.New("invalid prefix character")
		}
	}

	buffer := make([]byte, collisionResistantLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("unable to read random data: %w", err)
	}

	encoded := encoding.EncodeBase62(buffer)
	if len(encoded) > targetBase62Length {
		panic("encoded random data length longer than expected")
	}

	builder := &strings.Builder{}
	builder.WriteString(prefix)
	builder.WriteByte('_')
	for i := targetBase62Length - len(encoded); i > 0; i-- {
		builder.WriteByte(encoding.Base62Alphabet[0])
	}
	builder.WriteString(encoded)

	return builder.String(), nil
}

// IsValid determines whether or not a string is a validly-formed
// identifier (of any prefix).
func IsValid(value string) bool {
	return matcher.MatchString(value)
}
