package application

import (
	"strings"

	"github.com/google/uuid"
)

// prefixedID returns a generator of ids such as MTG-1A2B3C4D.
func prefixedID(prefix string) func() string {
	return func() string {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		return prefix + "-" + strings.ToUpper(raw[:8])
	}
}
