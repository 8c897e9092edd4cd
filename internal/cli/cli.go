// Package cli is a small pflag based command tree used by restd.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	flag "github.com/spf13/pflag"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
)

// UsageError signals that the command was invoked incorrectly, and usage should be shown.
type UsageError struct {
	wrapped error
}

func (e *UsageError) Error() string {
	return "usage error: " + e.wrapped.Error()
}

func (e *UsageError) Unwrap() error {
	return e.wrapped
}

// Usagef creates a [*UsageError].
func Usagef(format string, args ...any) error {
	return &UsageError{wrapped: fmt.Errorf(format, args...)}
}

// RunFunc runs a [Command] after its flags are parsed. Remaining positional arguments are in flags.Args().
type RunFunc = func(ctx context.Context, flags *flag.FlagSet, out io.Writer) error

type Command struct {
	name  string
	short string
	usage string
	flags *flag.FlagSet
	run   RunFunc
}

// Flags returns the [flag.FlagSet] to define this command's flags on.
func (c *Command) Flags() *flag.FlagSet {
	return c.flags
}

// Usage sets the usage line shown after "USAGE:" in help output.
func (c *Command) Usage(format string, args ...any) *Command {
	c.usage = fmt.Sprintf(format, args...)
	return c
}

// Does sets the function run by this command.
func (c *Command) Does(run RunFunc) *Command {
	c.run = run
	return c
}

func (c *Command) printUsage(out io.Writer, parent string) {
	var buf strings.Builder
	buf.WriteString(c.short + "\n")
	if len(c.usage) > 0 {
		buf.WriteString("\nUSAGE:\n" + parent + " " + c.usage + "\n")
	}
	buf.WriteString("\nFLAGS\n")
	buf.WriteString(c.flags.FlagUsages())
	_, _ = io.WriteString(out, buf.String())
}

// CommandSet is the root of a command tree.
type CommandSet struct {
	name     string
	out      io.Writer
	commands map[string]*Command
}

// NewCommandSet creates a [CommandSet]. The name is how the binary is invoked, and output is written to out.
func NewCommandSet(name string, out io.Writer) *CommandSet {
	return &CommandSet{name: name, out: out, commands: map[string]*Command{}}
}

// AddCommand adds a command with a one line description. Names are matched case-insensitive.
func (s *CommandSet) AddCommand(name, short string) *Command {
	name = strings.ToLower(strings.TrimSpace(name))
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolP("help", "h", false, "Prints this usage information")
	cmd := &Command{name: name, short: short, flags: fs}
	s.commands[name] = cmd
	return cmd
}

// CommandUsages lists every command with its description, sorted by name.
func (s *CommandSet) CommandUsages() string {
	var (
		buf    strings.Builder
		names  = slices.Sorted(maps.Keys(s.commands))
		maxLen int
	)
	for _, name := range names {
		maxLen = max(maxLen, len(name))
	}
	for _, name := range names {
		buf.WriteString(fmt.Sprintf("  %-*s\t%s\n", maxLen, name, s.commands[name].short))
	}
	return buf.String()
}

func (s *CommandSet) printUsage() {
	_, _ = fmt.Fprintf(s.out, "USAGE:\n%s COMMAND [FLAGS]\n\nCOMMANDS:\n%s", s.name, s.CommandUsages())
}

// Exec finds the command named by args[0], parses its flags from the rest, and runs it.
// Help flags print usage and return nil. A [*UsageError] from the command also prints its usage.
func (s *CommandSet) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		s.printUsage()
		return fmt.Errorf("%w: no command given", ErrUnknownCommand)
	}
	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		s.printUsage()
		return nil
	}
	cmd, ok := s.commands[strings.ToLower(args[0])]
	if !ok {
		s.printUsage()
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	if err := cmd.flags.Parse(args[1:]); err != nil {
		cmd.printUsage(s.out, s.name)
		return &UsageError{wrapped: err}
	}
	if help, _ := cmd.flags.GetBool("help"); help || cmd.run == nil {
		cmd.printUsage(s.out, s.name)
		return nil
	}
	err := cmd.run(ctx, cmd.flags, s.out)
	var usageErr *UsageError
	if errors.As(err, &usageErr) {
		cmd.printUsage(s.out, s.name)
	}
	return err
}
