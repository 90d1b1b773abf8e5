// Package interactive provides the command loop for leap-shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/leap-protocol/leap-go/pkg/bridge"
	"github.com/leap-protocol/leap-go/pkg/catalog"
	"github.com/leap-protocol/leap-go/pkg/connection"
)

// Shell handles the interactive command loop.
type Shell struct {
	bridge  *bridge.Bridge
	manager *connection.Manager
	rl      *readline.Instance
}

// New creates the shell around a connected bridge session.
func New(b *bridge.Bridge, manager *connection.Manager) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "leap> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{bridge: b, manager: manager, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run reads and executes commands until quit, EOF, or ctx ends.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "list", "l":
			s.cmdList()

		case "on":
			s.cmdSwitch(ctx, args, true)

		case "off":
			s.cmdSwitch(ctx, args, false)

		case "dim", "d":
			s.cmdDim(ctx, args)

		case "scenes":
			s.cmdScenes()

		case "activate", "a":
			s.cmdActivate(ctx, args)

		case "status":
			s.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Commands:
  list                  - List devices with their current states
  on <device>           - Turn a device on
  off <device>          - Turn a device off
  dim <device> <level>  - Set brightness (0-100)
  scenes                - List scenes
  activate <scene>      - Activate a scene
  status                - Show connection status
  help                  - Show this help
  quit                  - Exit

Devices and scenes take an id or a name; unique name prefixes work.
Names with spaces need quotes in your shell, or use the id.`)
}

func (s *Shell) cmdList() {
	devices, err := s.bridge.ListDevices()
	if err != nil {
		s.printError(err)
		return
	}
	if len(devices) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No controllable devices found.")
		return
	}
	for _, dev := range devices {
		fmt.Fprintf(s.rl.Stdout(), "  %-4s %-30s %-8s %s\n",
			dev.ID, dev.Name, dev.Kind, formatState(dev))
	}
}

func (s *Shell) cmdSwitch(ctx context.Context, args []string, on bool) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: on|off <device>")
		return
	}
	name := strings.Join(args, " ")
	var err error
	if on {
		err = s.bridge.TurnOn(ctx, name)
	} else {
		err = s.bridge.TurnOff(ctx, name)
	}
	if err != nil {
		s.printError(err)
		return
	}
	s.printDevice(name)
}

func (s *Shell) cmdDim(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: dim <device> <level>")
		return
	}
	level, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid level: %s\n", args[len(args)-1])
		return
	}
	name := strings.Join(args[:len(args)-1], " ")
	if err := s.bridge.SetBrightness(ctx, name, level); err != nil {
		s.printError(err)
		return
	}
	s.printDevice(name)
}

func (s *Shell) cmdScenes() {
	scenes, err := s.bridge.ListScenes()
	if err != nil {
		s.printError(err)
		return
	}
	if len(scenes) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No scenes programmed.")
		return
	}
	for _, scene := range scenes {
		fmt.Fprintf(s.rl.Stdout(), "  %-4s %s\n", scene.ID, scene.Name)
	}
}

func (s *Shell) cmdActivate(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: activate <scene>")
		return
	}
	name := strings.Join(args, " ")
	if err := s.bridge.ActivateScene(ctx, name); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Scene activated.")
}

func (s *Shell) cmdStatus() {
	fmt.Fprintf(s.rl.Stdout(), "Connection: %s\n", s.manager.State())
}

func (s *Shell) printDevice(idOrName string) {
	dev, err := s.bridge.GetDeviceState(idOrName)
	if err != nil {
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%s is now %s\n", dev.Name, formatState(dev))
}

func (s *Shell) printError(err error) {
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		fmt.Fprintf(s.rl.Stdout(), "Not connected (%s); retrying in the background\n", s.manager.State())
	case errors.Is(err, catalog.ErrAmbiguousName), errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, catalog.ErrInvalidArgument):
		fmt.Fprintf(s.rl.Stdout(), "%v\n", err)
	default:
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
	}
}

func formatState(dev catalog.Device) string {
	if !dev.State.On {
		return "off"
	}
	if dev.Kind == catalog.KindDimmer && dev.State.Level > 0 {
		return fmt.Sprintf("on (%d%%)", dev.State.Level)
	}
	return "on"
}
