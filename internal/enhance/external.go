package enhance

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// External invokes a single-purpose enhancement program (the ML path) as
// an isolated subprocess: argv is command [script] input output. Success
// means exit status 0 and an output file on disk. Spawn failures, non-zero
// exits and timeouts are all ordinary tier failures for the chain to fall
// through.
type External struct {
	command string
	script  string
	timeout time.Duration
	log     zerolog.Logger
}

func NewExternal(command, script string, timeout time.Duration, log zerolog.Logger) *External {
	return &External{
		command: command,
		script:  script,
		timeout: timeout,
		log:     log,
	}
}

func (e *External) Enhance(ctx context.Context, inputPath, outputPath string) error {
	if e.command == "" {
		return fmt.Errorf("external enhancer not configured")
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := make([]string, 0, 3)
	if e.script != "" {
		args = append(args, e.script)
	}
	args = append(args, inputPath, outputPath)

	cmd := exec.CommandContext(ctx, e.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	e.log.Debug().
		Str("command", e.command).
		Str("stdout", stdout.String()).
		Str("stderr", stderr.String()).
		Msg("external enhancer finished")

	if err != nil {
		// Never leave a half-written output behind for the next tier
		// to trip over.
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return fmt.Errorf("external enhancer timed out: %w", ctx.Err())
		}
		return fmt.Errorf("external enhancer: %w (stderr: %s)", err, stderr.String())
	}

	if _, statErr := os.Stat(outputPath); statErr != nil {
		return fmt.Errorf("external enhancer exited 0 but wrote no output: %w", statErr)
	}

	return nil
}
