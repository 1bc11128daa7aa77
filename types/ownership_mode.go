// ownership_mode.go defines how payloads are handed from one stage to the next.

package types

import "fmt"

// OwnershipMode defines whether a stage hands downstream engine-owned handles
// (which the receiver must release or pass on) or self-contained copies.
type OwnershipMode int

const (
	// OwnershipModeUndefined means "inherit from the requesting stage".
	OwnershipModeUndefined = OwnershipMode(iota)

	// OwnershipModeHandle transfers engine handles downstream.
	OwnershipModeHandle

	// OwnershipModeCopy hands downstream owned copies that are valid indefinitely.
	OwnershipModeCopy

	EndOfOwnershipMode
)

// DefaultOwnershipMode is used for synthesized stages when neither the stage
// nor its requester declares a mode.
const DefaultOwnershipMode = OwnershipModeHandle

func (m OwnershipMode) String() string {
	switch m {
	case OwnershipModeUndefined:
		return "<undefined>"
	case OwnershipModeHandle:
		return "handle"
	case OwnershipModeCopy:
		return "copy"
	default:
		return fmt.Sprintf("OwnershipMode(%d)", int(m))
	}
}

// Or returns m, or fallback if m is undefined.
func (m OwnershipMode) Or(fallback OwnershipMode) OwnershipMode {
	if m == OwnershipModeUndefined {
		return fallback
	}
	return m
}

func (m OwnershipMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *OwnershipMode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "<undefined>":
		*m = OwnershipModeUndefined
	case "handle", "ptr", "pointer":
		*m = OwnershipModeHandle
	case "copy":
		*m = OwnershipModeCopy
	default:
		return fmt.Errorf("unknown ownership mode '%s'", b)
	}
	return nil
}

// Set implements pflag.Value.
func (m *OwnershipMode) Set(s string) error {
	return m.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (m *OwnershipMode) Type() string {
	return "ownership-mode"
}
