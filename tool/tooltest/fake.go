// Package tooltest provides a fake tool.Runner for tests.
package tooltest

import (
	"context"
	"sync"

	"github.com/grailbio/radclust/tool"
)

// Handler fabricates the effect of one invocation: it may write files
// named by the arguments or write to cmd.Stdout.
type Handler func(ctx context.Context, cmd tool.Cmd) error

// Fake is a tool.Runner that records every invocation and dispatches
// it to a per-program Handler. Programs without a handler succeed
// without side effects. Fake is safe for concurrent use.
type Fake struct {
	Handlers map[string]Handler

	mu    sync.Mutex
	calls []tool.Cmd
}

// Run implements tool.Runner.
func (f *Fake) Run(ctx context.Context, cmd tool.Cmd) error {
	f.mu.Lock()
	f.calls = append(f.calls, tool.Cmd{Name: cmd.Name, Args: append([]string(nil), cmd.Args...)})
	h := f.Handlers[cmd.Name]
	f.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, cmd)
}

// Calls returns the recorded invocations in the order they were issued.
func (f *Fake) Calls() []tool.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tool.Cmd(nil), f.calls...)
}

// Arg returns the argument following flag in cmd, or "" if flag is absent.
func Arg(cmd tool.Cmd, flag string) string {
	for i, a := range cmd.Args {
		if a == flag && i+1 < len(cmd.Args) {
			return cmd.Args[i+1]
		}
	}
	return ""
}
