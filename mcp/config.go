// Package mcp connects to a Model Context Protocol tool server, discovers its
// tools and executes tool calls on behalf of the agent loop.
package mcp

import (
	"fmt"
	"sort"
)

// TransportType identifies the MCP transport implementation.
type TransportType string

const (
	// TransportSDK speaks streamable HTTP through the mcp-go client.
	TransportSDK TransportType = "sdk"

	// TransportJSONRPC posts raw JSON-RPC 2.0 requests over HTTP.
	TransportJSONRPC TransportType = "jsonrpc"

	// TransportStdio spawns a local server and talks over stdin/stdout.
	TransportStdio TransportType = "stdio"
)

// ServerConfig describes how to reach a single MCP server.
type ServerConfig struct {
	// URL is the MCP endpoint, e.g. https://sandbox.example/mcp.
	URL string

	// Token is sent as a bearer token on every HTTP request.
	Token string

	// Transport selects the implementation. Empty means TransportSDK when URL
	// is set and TransportStdio when only Command is set.
	Transport TransportType

	// Command is the executable to spawn (stdio transport only).
	Command string

	// Args are command-line arguments for the subprocess.
	Args []string

	// Env are extra environment variables for the subprocess.
	Env map[string]string

	// ClientName and ClientVersion are reported during initialize.
	ClientName    string
	ClientVersion string
}

func (c ServerConfig) clientInfo() (string, string) {
	name, version := c.ClientName, c.ClientVersion
	if name == "" {
		name = "sandbox-agent"
	}
	if version == "" {
		version = "0.1.0"
	}
	return name, version
}

func (c ServerConfig) headers() map[string]string {
	h := map[string]string{}
	if c.Token != "" {
		h["Authorization"] = "Bearer " + c.Token
	}
	return h
}

func (c ServerConfig) environ() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, c.Env[k]))
	}
	return env
}

// ParseTransportType maps a configuration string to a TransportType.
func ParseTransportType(s string) (TransportType, error) {
	switch TransportType(s) {
	case "":
		return TransportSDK, nil
	case TransportSDK, TransportJSONRPC, TransportStdio:
		return TransportType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, s)
	}
}
