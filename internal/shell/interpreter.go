package shell

import (
	"fmt"
	"os"
	"os/exec"
)

// Interpreter is the contract for running a command line through a shell.
// Each interpreter supplies the executable and the argument list that makes
// it evaluate a single command string.
type Interpreter interface {
	Name() string
	Command() string
	BuildArgs(command string) []string
}

type posixShell struct {
	name string
	path string
}

func (s posixShell) Name() string    { return s.name }
func (s posixShell) Command() string { return s.path }
func (s posixShell) BuildArgs(command string) []string {
	return []string{"-c", command}
}

var (
	statFn     = os.Stat
	lookPathFn = exec.LookPath
)

// Resolve returns an executable path for the interpreter. The absolute
// default is used when present, otherwise the name is looked up in PATH.
func Resolve(in Interpreter) (string, error) {
	if in == nil {
		return "", fmt.Errorf("nil interpreter")
	}
	if info, err := statFn(in.Command()); err == nil && !info.IsDir() {
		return in.Command(), nil
	}
	path, err := lookPathFn(in.Name())
	if err != nil {
		return "", fmt.Errorf("%s interpreter not found: %w", in.Name(), err)
	}
	return path, nil
}

// SetLookPathFn replaces the PATH lookup used by Resolve and returns a
// restore function.
func SetLookPathFn(fn func(string) (string, error)) (restore func()) {
	prev := lookPathFn
	if fn != nil {
		lookPathFn = fn
	} else {
		lookPathFn = exec.LookPath
	}
	return func() { lookPathFn = prev }
}

func SetStatFn(fn func(string) (os.FileInfo, error)) (restore func()) {
	prev := statFn
	if fn != nil {
		statFn = fn
	} else {
		statFn = os.Stat
	}
	return func() { statFn = prev }
}
