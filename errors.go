package agentshell

import "errors"

// Sentinel errors returned by the agent facade.
var (
	ErrNoEngine       = errors.New("agentshell: no reasoning engine configured")
	ErrInitialization = errors.New("agentshell: initialization failed")
	ErrNotInitialized = errors.New("agentshell: agent not initialized")
	ErrMaxToolRounds  = errors.New("agentshell: max tool rounds reached")
	ErrInvalidMode    = errors.New("agentshell: invalid operational mode")
)
