//go:build linux

package options

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationEmptyMeansNoLimit(t *testing.T) {
	d, err := parseDuration("wall-time", "")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestParseDurationValid(t *testing.T) {
	d, err := parseDuration("wall-time", "1500ms")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 1500*time.Millisecond, *d)
}

func TestParseDurationInvalid(t *testing.T) {
	_, err := parseDuration("wall-time", "not-a-duration")
	assert.Error(t, err)
}

func TestParseSizeEmptyMeansNoLimit(t *testing.T) {
	s, err := parseSize("memory", "")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestParseSizeValid(t *testing.T) {
	// go-bytesize reads "MB" as 2^20 bytes.
	s, err := parseSize("memory", "256MB")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, uint64(256<<20), s.Bytes())
}

func TestParseSizeInvalid(t *testing.T) {
	_, err := parseSize("memory", "lots")
	assert.Error(t, err)
}

func TestParsePidsZeroOrNegativeMeansNoLimit(t *testing.T) {
	assert.Nil(t, parsePids(0))
	assert.Nil(t, parsePids(-1))
}

func TestParsePidsPositive(t *testing.T) {
	p := parsePids(64)
	require.NotNil(t, p)
	assert.Equal(t, int64(64), *p)
}

func TestParseControllerPath(t *testing.T) {
	p := parseControllerPath("/sys/fs/cgroup/cpuacct/x", "", "/sys/fs/cgroup/pids/x")
	require.NotNil(t, p.Cpuacct)
	assert.Nil(t, p.Memory)
	require.NotNil(t, p.Pids)
	assert.Equal(t, "/sys/fs/cgroup/cpuacct/x", *p.Cpuacct)
	assert.Equal(t, "/sys/fs/cgroup/pids/x", *p.Pids)
}
