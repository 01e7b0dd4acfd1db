// Package cli implements the sandbox-agent command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	agent "github.com/armatrix/sandbox-agent"
	"github.com/armatrix/sandbox-agent/internal/config"
	"github.com/armatrix/sandbox-agent/internal/console"
	"github.com/armatrix/sandbox-agent/internal/engine"
	"github.com/armatrix/sandbox-agent/internal/logging"
	"github.com/armatrix/sandbox-agent/internal/prompt"
	"github.com/armatrix/sandbox-agent/mcp"
	"github.com/armatrix/sandbox-agent/sandbox"
)

// ErrRunFailed is returned when the run ended in the aborted state. The
// failure has already been printed.
var ErrRunFailed = errors.New("agent run failed")

// runner carries the collaborators a run needs. Tests replace them.
type runner struct {
	loadConfig  func() (*config.Config, error)
	provisioner func(cfg *config.Config) sandbox.Provisioner
	extraOpts   []agent.AgentOption
	noColor     bool
}

func defaultRunner() *runner {
	return &runner{
		loadConfig: func() (*config.Config, error) { return config.Load() },
		provisioner: func(cfg *config.Config) sandbox.Provisioner {
			return sandbox.NewStatic(sandbox.Sandbox{
				Name:       cfg.SandboxName,
				BaseURL:    cfg.SandboxURL,
				Token:      cfg.SandboxAPIKey,
				PreviewURL: cfg.SandboxPreviewURL,
			})
		},
		noColor: color.NoColor,
	}
}

// NewRootCmd creates the sandbox-agent command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultRunner())
}

func newRootCmd(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sandbox-agent [task...]",
		Short: "Build an app inside a remote sandbox with an LLM agent",
		Long: `sandbox-agent connects a language model to the MCP tool server of a remote
sandbox and lets it work on the task until it is done or the turn budget runs out.

The task is the command line arguments joined by spaces. Settings are read
from the environment and an optional .env file.`,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd.Context(), args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func (r *runner) run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts, transport, err := agentOptions(cfg)
	if err != nil {
		return err
	}

	printer := console.New(stdout, stderr, r.noColor)

	fmt.Fprintf(stdout, "Resolving sandbox %s...\n", cfg.SandboxName)
	sb, err := r.provisioner(cfg).Provision(ctx)
	if err != nil {
		logger.Error("sandbox provisioning failed", zap.Error(err))
		printer.Error(err, 0)
		return ErrRunFailed
	}
	printer.Sandbox(sb)

	server := sb.ServerConfig(transport)
	if transport == mcp.TransportStdio {
		server = mcp.ServerConfig{
			Transport: mcp.TransportStdio,
			Command:   cfg.MCPCommand,
			Env: map[string]string{
				config.EnvSandboxURL:    sb.BaseURL,
				config.EnvSandboxAPIKey: sb.Token,
			},
		}
	}

	task := prompt.TaskFromArgs(args)
	printer.Task(task)

	opts = append(opts, agent.WithToolServer(server), agent.WithLogger(logger))
	opts = append(opts, r.extraOpts...)
	a := agent.NewAgent(opts...)
	logger.Debug("starting run", zap.String("model", a.Model()), zap.Int("max_turns", a.MaxTurns()))

	stream := a.Run(ctx, prompt.Build(task))
	for stream.Next() {
		printer.Handle(stream.Current())
	}
	fmt.Fprintln(stdout, "✓ Sandbox remains active for development")

	res := stream.Result()
	if res == nil || res.IsError() {
		return ErrRunFailed
	}
	return nil
}

// agentOptions maps the environment settings onto agent options and returns
// the selected MCP transport.
func agentOptions(cfg *config.Config) ([]agent.AgentOption, mcp.TransportType, error) {
	provider, err := agent.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", config.EnvProvider, err)
	}
	transport, err := mcp.ParseTransportType(cfg.Transport)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", config.EnvTransport, err)
	}
	if transport == mcp.TransportStdio && cfg.MCPCommand == "" {
		return nil, "", fmt.Errorf("%s is required with the stdio transport", config.EnvMCPCommand)
	}
	policy, err := engine.ParseResultPolicy(cfg.ResultPolicy)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", config.EnvResultPolicy, err)
	}

	opts := []agent.AgentOption{
		agent.WithProvider(provider),
		agent.WithModel(cfg.Model),
		agent.WithMaxTurns(cfg.MaxTurns),
		agent.WithMaxOutputTokens(cfg.MaxTokens),
		agent.WithResultPolicy(policy),
	}
	return opts, transport, nil
}
