package database

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

const (
	tailLines = 20
	// maxLine bounds a single progress line; longer lines are split.
	maxLine = 1 << 20
)

// command is one invocation of an external tool.
type command struct {
	Name string
	Args []string
	// Env is appended to the current environment. Secrets travel here, never in Args.
	Env []string
	// Stdin, when set, is a file fed to the tool's standard input.
	Stdin   string
	Timeout time.Duration
}

// run starts c and forwards each line of its combined stdout/stderr to
// progress as soon as it is read. Both streams share one pipe, so lines keep
// the order the tool wrote them in. Failures come back as *domain.Error:
// failKind for start errors and non-zero exits, KindCancelled when ctx ends,
// KindTimeout when c.Timeout elapses. A tool that exits cleanly wins a race
// against cancellation.
func run(ctx context.Context, c command, connection string, failKind domain.Kind, progress domain.ProgressFunc) error {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.WaitDelay = 5 * time.Second
	killProcessGroup(cmd)

	if c.Stdin != "" {
		in, err := os.Open(c.Stdin)
		if err != nil {
			return domain.NewError(failKind, connection, fmt.Sprintf("failed to open %s: %v", c.Stdin, err), err)
		}
		defer in.Close()
		cmd.Stdin = in
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return domain.NewError(failKind, connection, fmt.Sprintf("failed to create output pipe: %v", err), err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return domain.NewError(failKind, connection, fmt.Sprintf("failed to start %s: %v", c.Name, err), err)
	}
	pw.Close()

	tail := readLines(runCtx, pr, progress)
	pr.Close()
	waitErr := cmd.Wait()

	switch {
	case waitErr == nil:
		return nil
	case ctx.Err() != nil:
		return domain.NewError(domain.KindCancelled, connection, fmt.Sprintf("%s was cancelled", c.Name), ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return domain.NewError(domain.KindTimeout, connection,
			fmt.Sprintf("%s exceeded the timeout of %s", c.Name, c.Timeout), runCtx.Err())
	}

	reason := fmt.Sprintf("%s failed: %v", c.Name, waitErr)
	if out := strings.Join(tail, "\n"); out != "" {
		reason += "\n" + out
	}
	return domain.NewError(failKind, connection, reason, waitErr)
}

// readLines drains r, reporting every line and returning the last few for
// error messages. Once ctx ends lines are still drained but no longer
// reported, so a stalled sink cannot keep the tool from being reaped.
func readLines(ctx context.Context, r io.Reader, progress domain.ProgressFunc) []string {
	tail := make([]string, 0, tailLines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(tail) == tailLines {
			tail = tail[1:]
		}
		tail = append(tail, line)
		if progress != nil && ctx.Err() == nil {
			progress(ctx, line)
		}
	}
	if scanner.Err() != nil {
		// Keep the pipe drained so the tool never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
	return tail
}
