package executor

import (
	"context"
	"os"
	"os/exec"

	"jobswarm/internal/shell"
)

func SetForceKillDelay(seconds int32) (restore func()) {
	prev := forceKillDelay.Load()
	forceKillDelay.Store(seconds)
	return func() { forceKillDelay.Store(prev) }
}

func SetSelectShellFn(fn func(string) (shell.Interpreter, error)) (restore func()) {
	prev := selectShellFn
	if fn != nil {
		selectShellFn = fn
	} else {
		selectShellFn = shell.Select
	}
	return func() { selectShellFn = prev }
}

func SetResolveShellFn(fn func(shell.Interpreter) (string, error)) (restore func()) {
	prev := resolveShellFn
	if fn != nil {
		resolveShellFn = fn
	} else {
		resolveShellFn = shell.Resolve
	}
	return func() { resolveShellFn = prev }
}

func SetCommandContextFn(fn func(context.Context, string, ...string) *exec.Cmd) (restore func()) {
	prev := commandContext
	if fn != nil {
		commandContext = fn
	} else {
		commandContext = exec.CommandContext
	}
	return func() { commandContext = prev }
}

func SetGetpidFn(fn func() int) (restore func()) {
	prev := getpidFn
	if fn != nil {
		getpidFn = fn
	} else {
		getpidFn = os.Getpid
	}
	return func() { getpidFn = prev }
}
