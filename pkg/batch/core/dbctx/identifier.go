// Package dbctx holds the database identifier selected for a unit of work and the
// per-invocation execution context that carries it.
//
// An Identifier is chosen once per job invocation or request and travels in the
// context.Context passed down every call. There is no process-wide "current database":
// two invocations running concurrently each carry their own Holder.
package dbctx

import (
	"fmt"
	"strings"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// Identifier selects which physical database a unit of work targets.
type Identifier string

const (
	// Primary is the default database (DB_A).
	Primary Identifier = "Primary"
	// Secondary is the alternate database (DB_B).
	Secondary Identifier = "Secondary"
)

// All returns the closed set of identifiers in a stable order.
func All() []Identifier {
	return []Identifier{Primary, Secondary}
}

// String implements fmt.Stringer.
func (id Identifier) String() string {
	return string(id)
}

// Valid reports whether id belongs to the closed set.
func (id Identifier) Valid() bool {
	return id == Primary || id == Secondary
}

// ConfigKey returns the lower-case key used for the identifier in configuration maps.
func (id Identifier) ConfigKey() string {
	return strings.ToLower(string(id))
}

// Parse converts s into an Identifier, rejecting values outside the closed set.
// Matching is case-insensitive and accepts the legacy names DB_A and DB_B.
func Parse(s string) (Identifier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PRIMARY", "DB_A":
		return Primary, nil
	case "SECONDARY", "DB_B":
		return Secondary, nil
	default:
		return "", fmt.Errorf("unknown database identifier %q", s)
	}
}

// Coerce converts s into an Identifier, falling back to Primary when s is empty or unknown.
func Coerce(s string) Identifier {
	id, err := Parse(s)
	if err != nil {
		if strings.TrimSpace(s) != "" {
			logger.Warnf("Unknown database identifier '%s', defaulting to %s.", s, Primary)
		}
		return Primary
	}
	return id
}
