// Package console renders agent events as human readable progress output.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	agent "github.com/armatrix/sandbox-agent"
	"github.com/armatrix/sandbox-agent/sandbox"
)

// Printer writes progress to out and failures to errOut. It is not safe for
// concurrent use; feed it events from a single AgentStream loop.
type Printer struct {
	out    io.Writer
	errOut io.Writer

	ok      *color.Color
	fail    *color.Color
	header  *color.Color
	tool    *color.Color
	dim     *color.Color
	warn    *color.Color
	preview string

	// afterTool is set once a tool block starts so the next text delta is
	// separated from the tool marker.
	afterTool bool
}

// New creates a Printer. noColor disables ANSI escapes.
func New(out, errOut io.Writer, noColor bool) *Printer {
	p := &Printer{
		out:    out,
		errOut: errOut,
		ok:     color.New(color.FgGreen),
		fail:   color.New(color.FgRed, color.Bold),
		header: color.New(color.FgCyan, color.Bold),
		tool:   color.New(color.FgMagenta),
		dim:    color.New(color.FgHiBlack),
		warn:   color.New(color.FgYellow, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.ok, p.fail, p.header, p.tool, p.dim, p.warn} {
			c.DisableColor()
		}
	}
	return p
}

// Sandbox reports the provisioned sandbox and remembers its preview URL for
// the final summary.
func (p *Printer) Sandbox(sb *sandbox.Sandbox) {
	fmt.Fprintln(p.out, "Sandbox ready!")
	if sb.PreviewURL != "" {
		p.preview = sb.PreviewURL
		fmt.Fprintf(p.out, "Preview URL ready: %s\n", sb.PreviewURL)
	}
	fmt.Fprintln(p.out, "Connecting to MCP server...")
}

// Task prints the task being worked on.
func (p *Printer) Task(task string) {
	fmt.Fprintf(p.out, "Task: %s\n\n", task)
}

// Handle renders one event.
func (p *Printer) Handle(e agent.Event) {
	switch ev := e.(type) {
	case *agent.SystemEvent:
		p.ok.Fprintln(p.out, "✓ Connected to MCP server")
		p.ok.Fprintf(p.out, "✓ %d tool(s) available: %s\n\n", len(ev.Tools), strings.Join(ev.Tools, ", "))
	case *agent.TurnStartEvent:
		p.afterTool = false
		p.header.Fprintf(p.out, "\n--- Turn %d ---\n\n", ev.Turn)
	case *agent.StreamEvent:
		if p.afterTool {
			fmt.Fprint(p.out, "\n\n")
			p.afterTool = false
		}
		fmt.Fprint(p.out, ev.Delta)
	case *agent.ToolUseStartEvent:
		p.tool.Fprintf(p.out, "\n\n[Tool: %s]\n", ev.Name)
		p.afterTool = true
	case *agent.ToolsExecutingEvent:
		fmt.Fprintf(p.out, "\n\n[Executing %d tool(s)...]\n", len(ev.Calls))
		for _, c := range ev.Calls {
			fmt.Fprintf(p.out, "  - %s\n", c.Name)
		}
	case *agent.ToolResultEvent:
		if ev.Outcome.IsError() {
			p.fail.Fprintf(p.errOut, "  ✗ Error executing %s: %s\n", ev.Call.Name, ev.Outcome.Err)
		}
	case *agent.ResultEvent:
		p.result(ev)
	case *agent.ClosedEvent:
		if ev.Err != nil {
			p.fail.Fprintf(p.errOut, "Error closing MCP client: %v\n", ev.Err)
			return
		}
		p.ok.Fprintln(p.out, "\n✓ MCP client disconnected")
	}
}

func (p *Printer) result(ev *agent.ResultEvent) {
	switch ev.State {
	case agent.StateCompleted:
		p.ok.Fprintln(p.out, "\n\n--- Task completed ---")
	case agent.StateBudgetExceeded:
		p.warn.Fprintln(p.out, "\n\n--- Max turns reached ---")
	case agent.StateAborted:
		p.Error(ev.Err, failedTurn(ev))
	}

	p.dim.Fprintf(p.out, "%d turn(s) in %s · %d input / %d output tokens · $%s\n",
		ev.NumTurns,
		ev.Duration.Round(time.Millisecond),
		ev.Usage.InputTokens,
		ev.Usage.OutputTokens,
		ev.TotalCost.StringFixed(4),
	)
	if p.preview != "" {
		fmt.Fprintf(p.out, "Preview: %s\n", p.preview)
	}
}

// Error prints a fatal error block. turn is omitted when zero.
func (p *Printer) Error(err error, turn int) {
	p.fail.Fprintln(p.errOut, "\n\n❌ Error:")
	fmt.Fprintf(p.errOut, "  %v\n", err)
	if turn > 0 {
		fmt.Fprintf(p.errOut, "  (Failed at turn %d)\n", turn)
	}
}

func failedTurn(ev *agent.ResultEvent) int {
	var serr *agent.StreamError
	if errors.As(ev.Err, &serr) {
		return serr.Turn
	}
	return ev.NumTurns
}
