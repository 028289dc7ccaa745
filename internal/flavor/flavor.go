package flavor

import (
	"fmt"
	"strings"
)

// Flavor selects which McCode variant a document belongs to. The choice
// drives registry selection, particle macros and hover/completion content.
type Flavor uint8

const (
	McStas Flavor = iota
	McXtrace

	flavorCount
)

func (f Flavor) String() string {
	switch f {
	case McStas:
		return "mcstas"
	case McXtrace:
		return "mcxtrace"
	default:
		return "unknown"
	}
}

func (f Flavor) GoString() string {
	return fmt.Sprintf("Flavor(%s)", f.String())
}

// All returns both flavors in declaration order.
func All() []Flavor {
	return []Flavor{McStas, McXtrace}
}

// FromString parses a flavor name. Dashes and case are tolerated
// ("MCXTRACE", "mc-xtrace"); unknown names report ok=false.
func FromString(value string) (Flavor, bool) {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), "-", ""))
	switch name {
	case "mcstas":
		return McStas, true
	case "mcxtrace":
		return McXtrace, true
	default:
		return McStas, false
	}
}
