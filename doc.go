// Package agent drives a hosted language model against a sandboxed
// development environment through the Model Context Protocol.
//
// An [Agent] holds configuration only. Each call to [Agent.Run] opens a
// [Session]: it connects to the sandbox tool server, discovers its tools, and
// runs the tool-use loop until the model finishes, the turn budget runs out,
// or a fatal error aborts the run. Progress is delivered as [Event] values
// over an [AgentStream].
//
// # Quick Start
//
//	a := agent.NewAgent(
//	    agent.WithToolServer(mcp.ServerConfig{URL: sb.MCPEndpoint(), Token: sb.Token}),
//	    agent.WithMaxTurns(50),
//	)
//	stream := a.Run(ctx, "Create a Next.js app")
//	for stream.Next() {
//	    if e, ok := stream.Current().(*agent.StreamEvent); ok {
//	        fmt.Print(e.Delta)
//	    }
//	}
//
// # Sub-packages
//
//   - [mcp] provides the tool server transports, the tool registry and the executor.
//   - [conversation] provides the transcript model shared by every provider.
//   - [sandbox] describes the remote environment and how one is obtained.
package agent
