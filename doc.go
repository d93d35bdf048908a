// Package agentshell is an embeddable conversational agent core. It wires a
// pluggable reasoning engine to a set of external tool servers (package mcp),
// runs attachments through an overflow pipeline (package overflow), and
// reaches the host environment only through an injected capability provider
// (package capability), so the same core runs with full host privileges or
// inside a restricted execution context.
//
// The Agent type is the entire surface exposed to the surrounding
// application:
//
//	agent := agentshell.New(
//		agentshell.WithEngine(eng),
//		agentshell.WithCapabilities(capability.Host()),
//		agentshell.WithServersFile("servers.json"),
//	)
//	if err := agent.Initialize(ctx); err != nil {
//		// ...
//	}
//	resp, err := agent.ProcessMessage(ctx, agentshell.UserMessage{Content: "hello"})
package agentshell
