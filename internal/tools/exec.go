package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes a binary and returns its combined output. Tests
// substitute this to observe invocations without real tools installed.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// Run is the default CommandRunner backed by exec.CommandContext.
func Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return trimmed, Wrap(ErrTimeout, name, "run", trimmed, ctxErr)
		}
		return trimmed, fmt.Errorf("%s: %w: %s", name, err, trimmed)
	}
	return trimmed, nil
}

// WithTimeout derives a context bounded by timeoutSeconds when positive.
func WithTimeout(ctx context.Context, timeoutSeconds int) (context.Context, context.CancelFunc) {
	if timeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
}

// ExpandArgs substitutes {token} placeholders in an argument template.
func ExpandArgs(args []string, replacements map[string]string) []string {
	expanded := make([]string, len(args))
	for i, arg := range args {
		for token, value := range replacements {
			arg = strings.ReplaceAll(arg, token, value)
		}
		expanded[i] = arg
	}
	return expanded
}

// LookPath reports whether the binary is resolvable on PATH.
func LookPath(binary string) bool {
	_, err := exec.LookPath(strings.TrimSpace(binary))
	return err == nil
}
