//go:build linux

package options

import (
	"fmt"
	"time"

	"github.com/inhies/go-bytesize"
	"github.com/judgebox/judgebox/cgroup"
	"github.com/judgebox/judgebox/sandbox"
)

// parseDuration wraps time.ParseDuration with a flag-name-aware error; an
// empty string means "no limit" and returns a nil *time.Duration.
func parseDuration(flag, s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("bad --%s %q: %w", flag, s, err)
	}
	return sandbox.Duration(d), nil
}

// parseSize wraps bytesize.Parse; an empty string means "no limit".
func parseSize(flag, s string) (*sandbox.SpaceUsage, error) {
	if s == "" {
		return nil, nil
	}
	bs, err := bytesize.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("bad --%s %q: %w", flag, s, err)
	}
	return sandbox.Space(sandbox.SpaceUsageFromBytes(uint64(bs))), nil
}

// parsePids turns a non-negative flag value into a *int64, treating 0 as
// "no limit" since a cgroup pids.max of zero would forbid any task at all.
func parsePids(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return sandbox.Count(n)
}

// parseControllerPath builds a cgroup.Path from the three controller
// directory flags; any of them may be empty, meaning that controller is not
// managed for this run.
func parseControllerPath(cpuacct, memory, pids string) cgroup.Path {
	var p cgroup.Path
	if cpuacct != "" {
		p.Cpuacct = cgroup.Str(cpuacct)
	}
	if memory != "" {
		p.Memory = cgroup.Str(memory)
	}
	if pids != "" {
		p.Pids = cgroup.Str(pids)
	}
	return p
}
