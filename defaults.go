package agentshell

// Default values applied when the corresponding option is not set.
const (
	// DefaultMaxToolRounds bounds how many engine round trips one message
	// may spend on tool calls before the turn is aborted.
	DefaultMaxToolRounds = 8

	// DefaultMode is the operational mode an agent starts in.
	DefaultMode = ModeAutonomous
)
