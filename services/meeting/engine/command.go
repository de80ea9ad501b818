package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/xilidan/voicelink/services/meeting/entity"
)

// Command runs an external helper as `<command...> <audio path> <format>` and reads
// an EngineResult JSON document from its stdout.
type Command struct {
	name  string
	args  []string
	audio AudioSource
	log   *slog.Logger
}

func NewCommand(command string, audio AudioSource, log *slog.Logger) (*Command, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	log.Debug("command engine configured", slog.String("command", fields[0]))

	return &Command{
		name:  fields[0],
		args:  fields[1:],
		audio: audio,
		log:   log,
	}, nil
}

func (c *Command) Process(ctx context.Context, ref entity.Reference, format string) (*entity.EngineResult, error) {
	path, err := c.audio.Path(ref.String())
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, c.args...), path, format)
	cmd := exec.CommandContext(ctx, c.name, args...)
	c.log.Debug("running engine command",
		slog.String("command", c.name),
		slog.String("reference", ref.String()))

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("engine command failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("failed to run engine command: %w", err)
	}

	var res entity.EngineResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("failed to parse engine output: %w", err)
	}
	return &res, nil
}
