package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// ErrNoBaseURL is returned when a sandbox has no base URL configured.
var ErrNoBaseURL = errors.New("sandbox: base URL is not set")

// Static resolves an already running sandbox from fixed settings, typically
// read from the environment.
type Static struct {
	sb Sandbox
}

var _ Provisioner = (*Static)(nil)

// NewStatic returns a provisioner that always yields sb.
func NewStatic(sb Sandbox) *Static {
	return &Static{sb: sb}
}

// Provision validates the configured base URL and returns a copy of the
// sandbox.
func (p *Static) Provision(ctx context.Context) (*Sandbox, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProvisioningError{Name: p.sb.Name, Err: err}
	}
	if p.sb.BaseURL == "" {
		return nil, &ProvisioningError{Name: p.sb.Name, Err: ErrNoBaseURL}
	}
	if err := checkURL(p.sb.BaseURL); err != nil {
		return nil, &ProvisioningError{Name: p.sb.Name, Err: err}
	}
	if p.sb.PreviewURL != "" {
		if err := checkURL(p.sb.PreviewURL); err != nil {
			return nil, &ProvisioningError{Name: p.sb.Name, Err: fmt.Errorf("preview: %w", err)}
		}
	}
	sb := p.sb
	return &sb, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
