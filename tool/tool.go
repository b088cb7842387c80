// Package tool invokes the external programs the clustering pipeline
// delegates to (dereplication, clustering, pair merging, read mapping
// and multiple alignment). All invocations go through a Runner so that
// tests can substitute a fake that records calls and fabricates output.
package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/grailbio/base/log"
	"v.io/x/lib/lookpath"
)

// Cmd describes one external program invocation.
type Cmd struct {
	// Name is the program to run. It is resolved against PATH unless it
	// contains a path separator.
	Name string
	// Args are the program arguments, not including the program name.
	Args []string
	// Stdin, if non-nil, is connected to the program's standard input.
	Stdin io.Reader
	// Stdout, if non-nil, receives the program's standard output. When
	// nil, standard output is captured together with standard error and
	// reported on failure.
	Stdout io.Writer
}

// String returns the command line as it would be typed in a shell.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner runs external commands.
type Runner interface {
	// Run runs cmd to completion. A non-zero exit status is reported as
	// an *Error.
	Run(ctx context.Context, cmd Cmd) error
}

// Error reports a failed invocation. It names the command line and
// carries whatever the program wrote to its output streams.
type Error struct {
	Cmd    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v\n%s", e.Cmd, e.Err, e.Output)
}

// Exec is a Runner that runs commands as local subprocesses.
type Exec struct {
	// Env is the environment used to resolve program names. If nil, the
	// current process environment is used.
	Env map[string]string
}

// Run implements Runner.
func (x Exec) Run(ctx context.Context, c Cmd) error {
	path, err := Look(x.Env, c.Name)
	if err != nil {
		return &Error{Cmd: c.String(), Err: err}
	}
	log.Debug.Printf("exec: %s", c)
	cmd := exec.CommandContext(ctx, path, c.Args...)
	var out bytes.Buffer
	cmd.Stdin = c.Stdin
	cmd.Stderr = &out
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = &out
	}
	if err := cmd.Run(); err != nil {
		log.Error.Printf("%s: %v", c, err)
		return &Error{Cmd: c.String(), Output: out.String(), Err: err}
	}
	return nil
}

// Look resolves a program name to an executable path using the given
// environment, or the process environment if env is nil.
func Look(env map[string]string, name string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	if env == nil {
		env = environ()
	}
	return lookpath.Look(env, name)
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}
