//go:build linux

package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judgebox/judgebox/mount"
)

func TestParseMountDefaults(t *testing.T) {
	m, err := parseMount("/host/data:/data")
	require.NoError(t, err)
	assert.Equal(t, "/host/data", m.Source)
	assert.Equal(t, "/data", m.Destination)
	assert.Equal(t, mount.DefaultOptions(), m.Options)
}

func TestParseMountOptions(t *testing.T) {
	m, err := parseMount("/host/dev:/dev:ro,dev,exec")
	require.NoError(t, err)
	assert.True(t, m.Options.ReadOnly)
	assert.True(t, m.Options.Dev)
	assert.True(t, m.Options.Exec)
}

func TestParseMountRwOverridesReadOnlyDefault(t *testing.T) {
	m, err := parseMount("/host/tmp:/tmp:rw")
	require.NoError(t, err)
	assert.False(t, m.Options.ReadOnly)
}

func TestParseMountRejectsRelativeDestination(t *testing.T) {
	_, err := parseMount("/host:rel/dir")
	assert.Error(t, err)
}

func TestParseMountRejectsMissingParts(t *testing.T) {
	_, err := parseMount("/host-only")
	assert.Error(t, err)
}

func TestParseMountRejectsUnknownOption(t *testing.T) {
	_, err := parseMount("/host:/dest:bogus")
	assert.Error(t, err)
}
