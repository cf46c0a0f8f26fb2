// Package shellx runs the few external programs the testbed cannot drive
// through netlink, such as modprobe and the host network service manager.
package shellx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/shlex"
)

// ErrNoCommandToExecute is returned when a command line is empty.
var ErrNoCommandToExecute = errors.New("shellx: no command to execute")

// Dependencies is what this package needs from the operating system.
type Dependencies interface {
	// CmdCombinedOutput is equivalent to calling c.CombinedOutput.
	CmdCombinedOutput(c *exec.Cmd) ([]byte, error)

	// LookPath is equivalent to calling exec.LookPath.
	LookPath(file string) (string, error)
}

// Library contains the default dependencies. Tests replace it.
var Library Dependencies = &StdlibDependencies{}

// StdlibDependencies implements [Dependencies] with os/exec.
type StdlibDependencies struct{}

// CmdCombinedOutput implements [Dependencies].
func (*StdlibDependencies) CmdCombinedOutput(c *exec.Cmd) ([]byte, error) {
	return c.CombinedOutput()
}

// LookPath implements [Dependencies].
func (*StdlibDependencies) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// Argv contains the complete argv.
type Argv struct {
	// P is the MANDATORY program to execute.
	P string

	// V contains the OPTIONAL arguments.
	V []string
}

// NewArgv resolves command in PATH and returns its [Argv].
func NewArgv(command string, args ...string) (*Argv, error) {
	fullpath, err := Library.LookPath(command)
	if err != nil {
		return nil, err
	}
	return &Argv{P: fullpath, V: args}, nil
}

// ParseCommandLine splits cmdline the way a POSIX shell would.
func ParseCommandLine(cmdline string) (*Argv, error) {
	args, err := shlex.Split(cmdline)
	if err != nil {
		return nil, err
	}
	if len(args) < 1 {
		return nil, ErrNoCommandToExecute
	}
	return NewArgv(args[0], args[1:]...)
}

// String renders the argv for logging.
func (a *Argv) String() string {
	return quotedCommandLine(a.P, a.V...)
}

// Runner executes commands, logging each one before running it.
type Runner struct {
	Logger log.Interface

	// Timeout bounds every command. Zero means no limit.
	Timeout time.Duration
}

// Run executes argv. On failure the error carries the command output.
func (r *Runner) Run(ctx context.Context, argv *Argv) error {
	_, err := r.Output(ctx, argv)
	return err
}

// Output executes argv and returns its combined output.
func (r *Runner) Output(ctx context.Context, argv *Argv) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	if r.Logger != nil {
		r.Logger.Infof("+ %s", argv.String())
	}
	cmd := exec.CommandContext(ctx, argv.P, argv.V...)
	out, err := Library.CmdCombinedOutput(cmd)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return out, fmt.Errorf("%s: %w", argv.String(), err)
		}
		return out, fmt.Errorf("%s: %w: %s", argv.String(), err, msg)
	}
	return out, nil
}

// RunCommandLine parses cmdline and runs it.
func (r *Runner) RunCommandLine(ctx context.Context, cmdline string) error {
	argv, err := ParseCommandLine(cmdline)
	if err != nil {
		return err
	}
	return r.Run(ctx, argv)
}

func quotedCommandLine(command string, args ...string) string {
	v := []string{maybeQuoteArg(command)}
	for _, a := range args {
		v = append(v, maybeQuoteArg(a))
	}
	return strings.Join(v, " ")
}

func maybeQuoteArg(a string) string {
	if strings.ContainsAny(a, " \t\"") {
		a = strings.ReplaceAll(a, "\"", "\\\"")
		a = "\"" + a + "\""
	}
	return a
}
