package sandbox

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvListToStringArray(t *testing.T) {
	env := EnvList([]EnvVar{{Key: "A", Val: "1"}, {Key: "B", Val: "2"}})
	assert.Equal(t, []string{"A=1", "B=2"}, env.ToStringArray())
}

func TestForwardEnvironmentUsesOSEnviron(t *testing.T) {
	t.Setenv("JUDGEBOX_TEST_VAR", "present")
	env := ForwardEnvironment()
	assert.Contains(t, env.ToStringArray(), "JUDGEBOX_TEST_VAR=present")
	assert.Equal(t, os.Environ(), env.ToStringArray())
}

func TestEnvListEmpty(t *testing.T) {
	env := EnvList(nil)
	assert.Empty(t, env.ToStringArray())
}
