// Package shell runs host commands for action_script and shell custom nodes.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/BDNK1/nodeflow/runtime/plugin"
)

var _ plugin.ShellRunner = (*Runner)(nil)

// Runner executes commands directly, without a shell. A non-zero exit is
// reported through CommandResult.ExitCode; only a command that cannot be
// started is an error.
type Runner struct {
	// Env is appended to the process environment of every command.
	Env []string
	// Root, when set, confines working directories to that tree. Relative
	// working directories resolve against it.
	Root string
}

func (r *Runner) Run(ctx context.Context, command string, args []string, workDir string) (*plugin.CommandResult, error) {
	if r.Root != "" {
		if workDir == "" {
			workDir = r.Root
		} else if !filepath.IsAbs(workDir) {
			workDir = filepath.Join(r.Root, workDir)
		}
		if err := withinRoot(r.Root, workDir); err != nil {
			return nil, err
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workDir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &plugin.CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		result.ExitCode = exitErr.ExitCode()
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("run %s: %w", command, err)
	}
	return result, nil
}

// withinRoot rejects targets that escape root through "..".
func withinRoot(root, target string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("failed to resolve work dir %q: %w", target, err)
	}

	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil {
		return fmt.Errorf("invalid path relationship between %q and %q: %w", absRoot, absTarget, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("work dir %q escapes %q", target, root)
	}
	return nil
}
