package agentshell

import "fmt"

// OperationalMode selects how the agent handles actions that move value:
// execute them directly, or hand unsigned payloads back for external signing.
// Exactly one mode is active per agent instance at a time.
type OperationalMode string

const (
	// ModeAutonomous executes actions directly through tool servers.
	ModeAutonomous OperationalMode = "autonomous"

	// ModeReturnBytes returns unsigned transaction payloads to the caller
	// instead of executing them.
	ModeReturnBytes OperationalMode = "returnBytes"
)

// Valid reports whether m is a recognized mode.
func (m OperationalMode) Valid() bool {
	return m == ModeAutonomous || m == ModeReturnBytes
}

// ParseMode converts a configuration string into an OperationalMode.
func ParseMode(s string) (OperationalMode, error) {
	m := OperationalMode(s)
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	return m, nil
}
