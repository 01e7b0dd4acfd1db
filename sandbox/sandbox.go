// Package sandbox describes the remote development environment the agent
// works in and how one is obtained.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/armatrix/sandbox-agent/mcp"
)

// MCPPath is appended to a sandbox base URL to reach its tool server.
const MCPPath = "/mcp"

// Sandbox is a running environment reachable over HTTP.
type Sandbox struct {
	Name    string
	BaseURL string

	// Token authenticates requests to the tool server as a bearer token.
	Token string

	// PreviewURL is the public URL of the app served from the sandbox.
	// Empty when no preview is exposed.
	PreviewURL string
}

// MCPEndpoint returns the tool server URL.
func (s *Sandbox) MCPEndpoint() string {
	return strings.TrimRight(s.BaseURL, "/") + MCPPath
}

// ServerConfig builds the tool server configuration for the given transport.
func (s *Sandbox) ServerConfig(transport mcp.TransportType) mcp.ServerConfig {
	return mcp.ServerConfig{
		URL:       s.MCPEndpoint(),
		Token:     s.Token,
		Transport: transport,
	}
}

// Provisioner obtains a sandbox. Implementations may create one on demand or
// resolve an existing one.
type Provisioner interface {
	Provision(ctx context.Context) (*Sandbox, error)
}

// ProvisioningError reports that no sandbox could be obtained.
type ProvisioningError struct {
	Name string
	Err  error
}

func (e *ProvisioningError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("provision sandbox: %v", e.Err)
	}
	return fmt.Sprintf("provision sandbox %s: %v", e.Name, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }
