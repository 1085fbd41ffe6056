package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relayforge/relayforge/internal/billing"
)

type fakeRunner struct {
	summary billing.MigrationSummary
	err     error
	calls   int
	dryRun  bool
}

func (f *fakeRunner) Run(ctx context.Context, dryRun bool) (billing.MigrationSummary, error) {
	f.calls++
	f.dryRun = dryRun
	return f.summary, f.err
}

func TestBackfillCommandDryRunDefault(t *testing.T) {
	runner := &fakeRunner{summary: billing.MigrationSummary{KeysSeen: 3, KeysMigrated: 2, KeysSkipped: 1, PeriodsCreated: 5}}
	var out, errOut bytes.Buffer

	code := NewBackfillCLI(runner).Command(context.Background(), BackfillOptions{
		Stdout: &out,
		Stderr: &errOut,
		Stdin:  strings.NewReader(""),
	})
	require.Equal(t, 0, code)
	require.Equal(t, 1, runner.calls)
	require.True(t, runner.dryRun)
	require.Contains(t, out.String(), "would create")
	require.Empty(t, errOut.String())
}

func TestBackfillCommandApplyNeedsConfirmation(t *testing.T) {
	runner := &fakeRunner{}
	var out bytes.Buffer

	code := NewBackfillCLI(runner).Command(context.Background(), BackfillOptions{
		Mode:   BackfillModeApply,
		Stdout: &out,
		Stderr: io.Discard,
		Stdin:  strings.NewReader("n\n"),
	})
	require.Equal(t, 0, code)
	require.Equal(t, 0, runner.calls)
	require.Contains(t, out.String(), "aborted")
}

func TestBackfillCommandApplyConfirmed(t *testing.T) {
	runner := &fakeRunner{summary: billing.MigrationSummary{KeysSeen: 1, KeysMigrated: 1, PeriodsCreated: 4}}
	var out bytes.Buffer

	code := NewBackfillCLI(runner).Command(context.Background(), BackfillOptions{
		Mode:   BackfillModeApply,
		Stdout: &out,
		Stderr: io.Discard,
		Stdin:  strings.NewReader("y\n"),
	})
	require.Equal(t, 0, code)
	require.Equal(t, 1, runner.calls)
	require.False(t, runner.dryRun)
	require.Contains(t, out.String(), "created")
}

func TestBackfillCommandJSONOutput(t *testing.T) {
	runner := &fakeRunner{summary: billing.MigrationSummary{KeysSeen: 2, KeysMigrated: 2, PeriodsCreated: 7}}
	var out bytes.Buffer

	code := NewBackfillCLI(runner).Command(context.Background(), BackfillOptions{
		Mode:       BackfillModeApply,
		Yes:        true,
		JSONOutput: true,
		Stdout:     &out,
		Stderr:     io.Discard,
	})
	require.Equal(t, 0, code)

	var decoded struct {
		Mode           string `json:"mode"`
		KeysSeen       int64  `json:"keys_seen"`
		PeriodsCreated int64  `json:"periods_created"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Equal(t, "apply", decoded.Mode)
	require.Equal(t, int64(2), decoded.KeysSeen)
	require.Equal(t, int64(7), decoded.PeriodsCreated)
}

func TestBackfillCommandInvalidMode(t *testing.T) {
	var errOut bytes.Buffer
	code := NewBackfillCLI(&fakeRunner{}).Command(context.Background(), BackfillOptions{
		Mode:   BackfillMode("bogus"),
		Stdout: io.Discard,
		Stderr: &errOut,
	})
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "invalid mode")
}

func TestBackfillCommandRunnerError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("pg down")}
	var errOut bytes.Buffer

	code := NewBackfillCLI(runner).Command(context.Background(), BackfillOptions{
		Stdout: io.Discard,
		Stderr: &errOut,
	})
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "pg down")
}
