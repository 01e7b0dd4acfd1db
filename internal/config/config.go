// Package config reads the command line agent's settings from the
// environment, after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names.
const (
	EnvSandboxURL     = "SANDBOX_URL"
	EnvSandboxAPIKey  = "SANDBOX_API_KEY"
	EnvSandboxPreview = "SANDBOX_PREVIEW_URL"
	EnvSandboxName    = "SANDBOX_NAME"
	EnvProvider       = "AGENT_PROVIDER"
	EnvModel          = "AGENT_MODEL"
	EnvMaxTurns       = "AGENT_MAX_TURNS"
	EnvMaxTokens      = "AGENT_MAX_TOKENS"
	EnvTransport      = "AGENT_MCP_TRANSPORT"
	EnvMCPCommand     = "AGENT_MCP_COMMAND"
	EnvResultPolicy   = "AGENT_RESULT_POLICY"
	EnvLogLevel       = "AGENT_LOG_LEVEL"
)

// DefaultSandboxName names the sandbox when SANDBOX_NAME is unset.
const DefaultSandboxName = "my-nextjs-sandbox"

// Config holds the agent settings. Empty strings and zero numbers mean
// "use the library default".
type Config struct {
	SandboxName       string
	SandboxURL        string
	SandboxAPIKey     string
	SandboxPreviewURL string

	Provider     string
	Model        string
	MaxTurns     int
	MaxTokens    int64
	Transport    string
	MCPCommand   string
	ResultPolicy string
	LogLevel     string
}

// Load reads the given .env files (".env" when none are named) into the
// process environment without overriding variables already set, then builds
// a Config from the environment. Missing files are skipped.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config using lookup to read variables.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	cfg := &Config{
		SandboxName:       get(EnvSandboxName),
		SandboxURL:        get(EnvSandboxURL),
		SandboxAPIKey:     get(EnvSandboxAPIKey),
		SandboxPreviewURL: get(EnvSandboxPreview),
		Provider:          get(EnvProvider),
		Model:             get(EnvModel),
		Transport:         get(EnvTransport),
		MCPCommand:        get(EnvMCPCommand),
		ResultPolicy:      get(EnvResultPolicy),
		LogLevel:          get(EnvLogLevel),
	}
	if cfg.SandboxName == "" {
		cfg.SandboxName = DefaultSandboxName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if v := get(EnvMaxTurns); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: want a positive integer, got %q", EnvMaxTurns, v)
		}
		cfg.MaxTurns = n
	}
	if v := get(EnvMaxTokens); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%s: want a positive integer, got %q", EnvMaxTokens, v)
		}
		cfg.MaxTokens = n
	}
	return cfg, nil
}
