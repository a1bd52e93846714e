package shell

import (
	"fmt"
	"sort"
	"strings"
)

const DefaultName = "bash"

var registry = map[string]Interpreter{
	"bash": posixShell{name: "bash", path: "/bin/bash"},
	"sh":   posixShell{name: "sh", path: "/bin/sh"},
	"zsh":  posixShell{name: "zsh", path: "/bin/zsh"},
}

// Registry exposes the available interpreters. Intended for internal inspection/tests.
func Registry() map[string]Interpreter {
	return registry
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Select(name string) (Interpreter, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultName
	}
	if in, ok := registry[key]; ok {
		return in, nil
	}
	return nil, fmt.Errorf("unsupported shell %q (available: %s)", name, strings.Join(Names(), ", "))
}
