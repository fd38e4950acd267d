package sandbox

import (
	"fmt"
	"os"
)

// EnvVar is a single KEY=VALUE environment variable.
type EnvVar struct {
	Key string
	Val string
}

// Environment selects how the child's environment is built: either forwarded
// verbatim from the supervisor's own environment, or replaced outright by an
// explicit list.
type Environment struct {
	forward bool
	vars    []EnvVar
}

/**
 * @return an Environment that forwards the supervisor's environment verbatim.
 */
func ForwardEnvironment() Environment {
	return Environment{forward: true}
}

/**
 * @return an Environment that replaces the child's environment with vars.
 */
func EnvList(vars []EnvVar) Environment {
	return Environment{vars: vars}
}

// ToStringArray renders the environment as envp-style KEY=VALUE strings.
func (e Environment) ToStringArray() []string {
	if e.forward {
		return os.Environ()
	}
	out := make([]string, 0, len(e.vars))
	for _, v := range e.vars {
		out = append(out, fmt.Sprintf("%s=%s", v.Key, v.Val))
	}
	return out
}
