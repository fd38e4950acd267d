//go:build linux

// Package cgroup locates the per-run cgroup v1 controller directories for a
// sandbox instance and exposes typed read/write access to the controller
// files the supervisor needs: limit files before the child starts, usage
// counters after it stops.
package cgroup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Path holds the optional cgroup v1 controller directories a run is attached
// to. A nil field means that controller is not managed; the corresponding
// Usage field is reported as zero and any limit referring to it is silently
// unenforced.
type Path struct {
	Cpuacct *string
	Memory  *string
	Pids    *string
}

/**
 * @return a string pointer wrapping p, for populating a Path literal.
 */
func Str(p string) *string {
	return &p
}

// Usage is a single snapshot of the three controller counters.
type Usage struct {
	CPUTimeNanos uint64
	MemoryBytes  uint64
	Pids         uint64
}

// Registry is the live handle for one run's cgroup instance directories. It
// is created with New, populated with Create, and torn down with Destroy.
type Registry struct {
	controllers Path
	instance    string

	cpuacctDir string
	memoryDir  string
	pidsDir    string
}

// New returns a registry for the given controller roots and instance name.
// No filesystem operation happens until Create is called.
func New(controllers Path, instance string) *Registry {
	r := &Registry{controllers: controllers, instance: instance}
	if controllers.Cpuacct != nil {
		r.cpuacctDir = filepath.Join(*controllers.Cpuacct, instance)
	}
	if controllers.Memory != nil {
		r.memoryDir = filepath.Join(*controllers.Memory, instance)
	}
	if controllers.Pids != nil {
		r.pidsDir = filepath.Join(*controllers.Pids, instance)
	}
	return r
}

// Create makes the instance directory under each configured controller,
// with mode 0700.
func (r *Registry) Create() error {
	for _, dir := range r.dirs() {
		if err := os.Mkdir(dir, 0o700); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create cgroup dir %s: %w", dir, err)
		}
	}
	return nil
}

// WriteLimits applies memory.limit_in_bytes, memory.memsw.limit_in_bytes (set
// to the same value, matching the intent of a single memory cap), and
// pids.max from the given optional limits. A nil limit leaves the
// corresponding controller file untouched.
func (r *Registry) WriteLimits(memory *uint64, pids *int64) error {
	if r.memoryDir != "" && memory != nil {
		v := strconv.FormatUint(*memory, 10)
		if err := writeFile(filepath.Join(r.memoryDir, "memory.limit_in_bytes"), v); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(r.memoryDir, "memory.memsw.limit_in_bytes"), v); err != nil {
			// Swap accounting may not be compiled into the kernel; this is
			// best-effort so the memory cap itself still applies.
			_ = err
		}
	}
	if r.pidsDir != "" && pids != nil {
		if err := writeFile(filepath.Join(r.pidsDir, "pids.max"), strconv.FormatInt(*pids, 10)); err != nil {
			return err
		}
	}
	return nil
}

// ClearUsage zeroes cpuacct.usage and memory.max_usage_in_bytes and
// truncates memory.failcnt, so a stale counter from a reused controller
// directory doesn't leak into this run's snapshot.
func (r *Registry) ClearUsage() error {
	if r.cpuacctDir != "" {
		if err := writeFile(filepath.Join(r.cpuacctDir, "cpuacct.usage"), "0"); err != nil {
			return err
		}
	}
	if r.memoryDir != "" {
		if err := writeFile(filepath.Join(r.memoryDir, "memory.max_usage_in_bytes"), "0"); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(r.memoryDir, "memory.failcnt"), "0"); err != nil {
			return err
		}
	}
	return nil
}

// Attach writes pid to the tasks file of every configured controller. It
// must run before the child executes any code in the jail so that every
// process it later forks is counted too.
func (r *Registry) Attach(pid int) error {
	pidStr := strconv.Itoa(pid)
	for _, dir := range r.dirs() {
		if err := writeFile(filepath.Join(dir, "tasks"), pidStr); err != nil {
			return fmt.Errorf("attach pid %d to %s: %w", pid, dir, err)
		}
	}
	return nil
}

// Snapshot reads cpuacct.usage, memory.max_usage_in_bytes, and pids.current,
// in that order. Missing controllers report zero.
func (r *Registry) Snapshot() Usage {
	var u Usage
	if r.cpuacctDir != "" {
		u.CPUTimeNanos = readUint(filepath.Join(r.cpuacctDir, "cpuacct.usage"))
	}
	if r.memoryDir != "" {
		u.MemoryBytes = readUint(filepath.Join(r.memoryDir, "memory.max_usage_in_bytes"))
	}
	if r.pidsDir != "" {
		u.Pids = readUint(filepath.Join(r.pidsDir, "pids.current"))
	}
	return u
}

// SampleCPUTime reads only cpuacct.usage, for the supervisor's user-time
// poll loop; it avoids the cost of reading the other two controllers every
// tick.
func (r *Registry) SampleCPUTime() uint64 {
	if r.cpuacctDir == "" {
		return 0
	}
	return readUint(filepath.Join(r.cpuacctDir, "cpuacct.usage"))
}

// Destroy is idempotent: it migrates any residual tasks back to the root of
// the controller hierarchy, then removes the instance directory. It never
// returns an error that the caller is expected to act on once the child has
// already terminated — the supervisor logs and suppresses Destroy failures.
func (r *Registry) Destroy() error {
	type entry struct {
		root *string
		dir  string
	}
	entries := []entry{
		{r.controllers.Cpuacct, r.cpuacctDir},
		{r.controllers.Memory, r.memoryDir},
		{r.controllers.Pids, r.pidsDir},
	}

	var firstErr error
	for _, e := range entries {
		if e.dir == "" || e.root == nil {
			continue
		}
		migrateTasks(e.dir, *e.root)
		if err := os.Remove(e.dir); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("remove cgroup dir %s: %w", e.dir, err)
		}
	}
	return firstErr
}

func (r *Registry) dirs() []string {
	var dirs []string
	for _, d := range []string{r.cpuacctDir, r.memoryDir, r.pidsDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func migrateTasks(dir, rootDir string) {
	data, err := os.ReadFile(filepath.Join(dir, "tasks"))
	if err != nil {
		return
	}
	for _, line := range strings.Fields(string(data)) {
		_ = writeFile(filepath.Join(rootDir, "tasks"), line)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func readUint(path string) uint64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
