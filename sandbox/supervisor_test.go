//go:build linux

package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyCommand(t *testing.T) {
	assert.Error(t, validate(&Config{}))
}

func TestValidateSwapRedirectsRequiresNewRoot(t *testing.T) {
	cfg := &Config{Command: "/bin/true", SwapRedirects: DoSwapRedirects}
	assert.Error(t, validate(cfg))
}

func TestValidateSwapRedirectsRejectsRelativePath(t *testing.T) {
	cfg := &Config{
		Command:        "/bin/true",
		NewRoot:        "/jail",
		SwapRedirects:  DoSwapRedirects,
		RedirectStdout: "out.txt",
	}
	assert.Error(t, validate(cfg))
}

func TestValidateSwapRedirectsRejectsJailEscape(t *testing.T) {
	cfg := &Config{
		Command:       "/bin/true",
		NewRoot:       "/jail",
		SwapRedirects: DoSwapRedirects,
		RedirectStdin: "/data/../../etc/passwd",
	}
	assert.Error(t, validate(cfg))
}

func TestValidateSwapRedirectsAcceptsJailAbsolutePaths(t *testing.T) {
	cfg := &Config{
		Command:        "/bin/true",
		NewRoot:        "/jail",
		SwapRedirects:  DoSwapRedirects,
		RedirectStdin:  "/in.txt",
		RedirectStdout: "/out.txt",
		RedirectStderr: "/err.txt",
	}
	require.NoError(t, validate(cfg))
}

func TestValidateOuterRedirectPathsAreUnconstrained(t *testing.T) {
	// Without swap_redirects, paths live in the outer filesystem and any
	// shape the supervisor's caller can open is fair game.
	cfg := &Config{
		Command:        "/bin/true",
		RedirectStdout: "../relative/out.txt",
	}
	require.NoError(t, validate(cfg))
}
