package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/benmeehan/gps-streamer/internal/models"
	"github.com/benmeehan/gps-streamer/pkg/permission"
	"github.com/rs/zerolog"
)

const help = "commands: begin | pause | resume | revoke <permission> | status | quit"

// Controller is the part of the streamer the console drives.
type Controller interface {
	Begin(ctx context.Context) error
	Pause()
	Resume()
	Snapshot() models.Snapshot
}

// Console runs the interactive command loop.
type Console struct {
	in          *LineReader
	out         io.Writer
	screen      *Screen
	controller  Controller
	permissions permission.ManagerInterface
	logger      zerolog.Logger
}

// NewConsole wires the command loop.
func NewConsole(in *LineReader, out io.Writer, screen *Screen, controller Controller,
	permissions permission.ManagerInterface, logger zerolog.Logger) *Console {
	return &Console{
		in:          in,
		out:         out,
		screen:      screen,
		controller:  controller,
		permissions: permissions,
		logger:      logger,
	}
}

// Run processes commands until quit or ctx cancellation, returning nil for both.
// ErrInputClosed is returned when the input ends first.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintln(c.out, help)
	c.screen.Render(c.controller.Snapshot())

	for {
		line, err := c.in.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		quit, err := c.execute(ctx, line)
		if err != nil {
			c.logger.Error().Err(err).Str("command", line).Msg("Command failed")
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (c *Console) execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "begin":
		return false, c.controller.Begin(ctx)
	case "pause":
		c.controller.Pause()
	case "resume":
		c.controller.Resume()
	case "revoke":
		if len(fields) != 2 {
			return false, errors.New("usage: revoke <permission>")
		}
		perm, err := permission.Parse(fields[1])
		if err != nil {
			return false, err
		}
		c.permissions.Revoke(perm)
	case "status":
		fmt.Fprintln(c.out, strings.Join(Lines(c.controller.Snapshot()), "\n"))
	case "quit", "exit":
		return true, nil
	default:
		fmt.Fprintln(c.out, help)
	}
	return false, nil
}
