package agent

import (
	"fmt"

	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/sandbox"
)

// ProvisioningError reports that no sandbox could be obtained.
type ProvisioningError = sandbox.ProvisioningError

// StreamError reports a model stream that broke mid-turn. Turn is 1-based.
type StreamError = engine.StreamError

// ConnectionError reports a tool server that could not be configured,
// reached, or listed. No model call is made after one.
type ConnectionError struct {
	// Op is "configure", "connect" or "discover".
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tool server %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
