package mcp

import "errors"

// Sentinel errors for the MCP package.
var (
	// ErrNotConnected is returned when attempting to use a transport that
	// has not yet established a connection.
	ErrNotConnected = errors.New("mcp: server not connected")

	// ErrToolNotFound is returned when a tool name is not in the registry.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrInvalidConfig is returned when a ServerConfig is missing
	// required fields for its transport type.
	ErrInvalidConfig = errors.New("mcp: invalid server config")

	// ErrMalformedListing is returned when tools/list yields duplicate or
	// empty names or a non-object input schema.
	ErrMalformedListing = errors.New("mcp: malformed tool listing")

	// ErrProtocol is returned for JSON-RPC level failures.
	ErrProtocol = errors.New("mcp: protocol error")
)
