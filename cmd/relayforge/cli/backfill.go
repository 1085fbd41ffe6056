package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/relayforge/relayforge/internal/billing"
)

// BackfillMode enumerates supported execution strategies.
type BackfillMode string

const (
	// BackfillModeDry previews what would be migrated without writing.
	BackfillModeDry BackfillMode = "dry"
	// BackfillModeApply persists plan periods after confirmation.
	BackfillModeApply BackfillMode = "apply"
)

// BackfillRunner executes the plan-period backfill.
type BackfillRunner interface {
	Run(ctx context.Context, dryRun bool) (billing.MigrationSummary, error)
}

// BackfillOptions configures the backfill command execution.
type BackfillOptions struct {
	Mode       BackfillMode
	JSONOutput bool
	Yes        bool
	Stdout     io.Writer
	Stderr     io.Writer
	Stdin      io.Reader
	Confirm    func(io.Reader, io.Writer) (bool, error)
}

// BackfillCLI drives the administrative plan-period backfill.
type BackfillCLI struct {
	runner BackfillRunner
}

// NewBackfillCLI constructs a new helper instance.
func NewBackfillCLI(runner BackfillRunner) *BackfillCLI {
	return &BackfillCLI{runner: runner}
}

// Command executes the backfill workflow and returns a process exit code.
func (c *BackfillCLI) Command(ctx context.Context, opts BackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Confirm == nil {
		opts.Confirm = confirmPrompt
	}
	mode := BackfillMode(strings.ToLower(string(opts.Mode)))
	if mode == "" {
		mode = BackfillModeDry
	}
	switch mode {
	case BackfillModeDry, BackfillModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "backfill: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}

	if mode == BackfillModeApply && !opts.Yes {
		ok, err := opts.Confirm(opts.Stdin, opts.Stdout)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "backfill: confirmation failed: %v\n", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(opts.Stdout, "backfill: aborted")
			return 0
		}
	}

	summary, err := c.runner.Run(ctx, mode == BackfillModeDry)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		out := struct {
			Mode BackfillMode `json:"mode"`
			billing.MigrationSummary
		}{Mode: mode, MigrationSummary: summary}
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(opts.Stderr, "backfill: encode summary: %v\n", err)
			return 1
		}
		return 0
	}

	printer := message.NewPrinter(language.English)
	verb := "created"
	if mode == BackfillModeDry {
		verb = "would create"
	}
	printer.Fprintf(opts.Stdout, "backfill (%s): %d keys seen, %d skipped, %d migrated, %s %d periods\n",
		string(mode), summary.KeysSeen, summary.KeysSkipped, summary.KeysMigrated, verb, summary.PeriodsCreated)
	return 0
}

func confirmPrompt(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "apply plan-period backfill? [y/N]: ")
	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
