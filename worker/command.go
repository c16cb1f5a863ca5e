package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// CommandWorker invokes an external process for each phase. The task
// parameters are passed in the environment and the source path as the final
// argument; the process's stdout is scanned for a status token.
type CommandWorker struct {
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewCommandWorker creates a CommandWorker with the given command line.
// A zero timeout means the engine blocks on the worker indefinitely.
func NewCommandWorker(command string, args []string, timeout time.Duration, logger *slog.Logger) *CommandWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandWorker{Command: command, Args: args, Timeout: timeout, Logger: logger}
}

// Run executes the worker process and parses its stdout. A non-zero exit or
// a spawn failure is returned as an error; unrecognized output is not an
// error but an Outcome of KindUnknown.
func (w *CommandWorker) Run(ctx context.Context, req Request) (Outcome, error) {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, w.Args...), req.SourcePath)
	cmd := exec.CommandContext(ctx, w.Command, args...)
	cmd.Env = append(os.Environ(),
		"SPROCKET_AGENT="+req.Agent,
		"SPROCKET_TASK_ID="+req.TaskID,
		"SPROCKET_TASK_TYPE="+req.TaskType,
		"SPROCKET_SOURCE="+req.SourcePath,
		"SPROCKET_DESCRIPTION="+req.Description,
		"SPROCKET_AUTO_COMPLETE="+strconv.FormatBool(req.Automation.AutoComplete),
		"SPROCKET_AUTO_CHAIN="+strconv.FormatBool(req.Automation.AutoChain),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	w.Logger.Info("worker starting",
		slog.String("agent", req.Agent),
		slog.String("task", req.TaskID),
		slog.String("source", req.SourcePath),
	)
	if err := cmd.Run(); err != nil {
		return Outcome{}, fmt.Errorf("worker %s for agent %s: %w (stderr: %s)",
			w.Command, req.Agent, err, bytes.TrimSpace(stderr.Bytes()))
	}

	outcome := ParseOutcome(stdout.String())
	w.Logger.Info("worker finished",
		slog.String("agent", req.Agent),
		slog.String("task", req.TaskID),
		slog.String("token", outcome.Token),
		slog.Duration("elapsed", time.Since(start)),
	)
	return outcome, nil
}
