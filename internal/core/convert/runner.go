package convert

import (
	"context"
	"os/exec"
)

// Runner executes the external conversion tool. Abstract so tests can
// substitute a fake without spawning processes.
type Runner interface {
	// Run invokes the tool and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// KillStale terminates lingering tool processes matching pattern.
	KillStale(ctx context.Context, pattern string) error
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

func (execRunner) KillStale(ctx context.Context, pattern string) error {
	// pkill exits 1 when nothing matched; that is not an error here.
	cmd := exec.CommandContext(ctx, "pkill", "-f", pattern)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil
		}
		return err
	}
	return nil
}
