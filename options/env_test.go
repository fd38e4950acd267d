//go:build linux

package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgebox/judgebox/sandbox"
)

func TestParseEnv(t *testing.T) {
	ev, err := ParseEnv("KEY=value")
	require.NoError(t, err)
	assert.Equal(t, sandbox.EnvVar{Key: "KEY", Val: "value"}, ev)
}

func TestParseEnvAllowsEqualsInValue(t *testing.T) {
	ev, err := ParseEnv("KEY=a=b=c")
	require.NoError(t, err)
	assert.Equal(t, "a=b=c", ev.Val)
}

func TestParseEnvRejectsMissingEquals(t *testing.T) {
	_, err := ParseEnv("NOEQUALS")
	assert.Error(t, err)
}

func TestParseEnvRejectsEmptyKey(t *testing.T) {
	_, err := ParseEnv("=value")
	assert.Error(t, err)
}

func TestMergeEnvOverridesDefaults(t *testing.T) {
	user := []sandbox.EnvVar{{Key: "HOME", Val: "/custom"}, {Key: "EXTRA", Val: "1"}}
	merged := MergeEnv(defaultEnvironment, user)

	byKey := make(map[string]string, len(merged))
	for _, e := range merged {
		byKey[e.Key] = e.Val
	}

	assert.Equal(t, "/custom", byKey["HOME"])
	assert.Equal(t, "1", byKey["EXTRA"])
	assert.Equal(t, defaultEnvironment["PATH"], byKey["PATH"])
}

func TestMergeEnvIsDeterministic(t *testing.T) {
	user := []sandbox.EnvVar{{Key: "ZETA", Val: "1"}, {Key: "ALPHA", Val: "2"}}
	first := MergeEnv(defaultEnvironment, user)
	second := MergeEnv(defaultEnvironment, user)
	assert.Equal(t, first, second)
}
