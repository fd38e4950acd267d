//go:build linux

package cgroup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeControllerRoot lays out a directory tree shaped like a real cgroup v1
// controller mount: a "tasks" file at the root for migration on teardown,
// with the registry creating its own instance sub-directory underneath.
func fakeControllerRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tasks"), nil, 0o644))
	return root
}

// emptyInstanceDir removes every file inside an instance directory. On a real
// cgroupfs the control files are virtual and rmdir ignores them, but the
// plain tempdir standing in for it here refuses to remove a non-empty
// directory, so tests that populate control files clear them before Destroy.
func emptyInstanceDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, os.Remove(filepath.Join(dir, e.Name())))
	}
}

func TestRegistryCreateWriteSnapshotDestroy(t *testing.T) {
	cpuacctRoot := fakeControllerRoot(t)
	memoryRoot := fakeControllerRoot(t)
	pidsRoot := fakeControllerRoot(t)

	reg := New(Path{Cpuacct: Str(cpuacctRoot), Memory: Str(memoryRoot), Pids: Str(pidsRoot)}, "instance-1")
	require.NoError(t, reg.Create())

	instanceDir := filepath.Join(memoryRoot, "instance-1")
	require.DirExists(t, instanceDir)

	// Create the controller files up front, as they would already exist
	// under a real cgroupfs mount.
	require.NoError(t, os.WriteFile(filepath.Join(memoryRoot, "instance-1", "memory.limit_in_bytes"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(memoryRoot, "instance-1", "memory.memsw.limit_in_bytes"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pidsRoot, "instance-1", "pids.max"), nil, 0o644))

	mem := uint64(1 << 20)
	pids := int64(32)
	require.NoError(t, reg.WriteLimits(&mem, &pids))

	limitBytes, err := os.ReadFile(filepath.Join(memoryRoot, "instance-1", "memory.limit_in_bytes"))
	require.NoError(t, err)
	assert.Equal(t, "1048576", string(limitBytes))

	require.NoError(t, os.WriteFile(filepath.Join(cpuacctRoot, "instance-1", "cpuacct.usage"), []byte("4242"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(memoryRoot, "instance-1", "memory.max_usage_in_bytes"), []byte("2048"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pidsRoot, "instance-1", "pids.current"), []byte("3"), 0o644))

	usage := reg.Snapshot()
	assert.Equal(t, uint64(4242), usage.CPUTimeNanos)
	assert.Equal(t, uint64(2048), usage.MemoryBytes)
	assert.Equal(t, uint64(3), usage.Pids)
	assert.Equal(t, uint64(4242), reg.SampleCPUTime())

	emptyInstanceDir(t, filepath.Join(cpuacctRoot, "instance-1"))
	emptyInstanceDir(t, filepath.Join(memoryRoot, "instance-1"))
	emptyInstanceDir(t, filepath.Join(pidsRoot, "instance-1"))

	require.NoError(t, reg.Destroy())
	assert.NoDirExists(t, instanceDir)
}

func TestRegistryPartialControllersIgnoreUnmanaged(t *testing.T) {
	memoryRoot := fakeControllerRoot(t)
	reg := New(Path{Memory: Str(memoryRoot)}, "instance-2")
	require.NoError(t, reg.Create())

	// Pids and cpuacct are unmanaged: Snapshot must report zero for them
	// without touching the filesystem.
	usage := reg.Snapshot()
	assert.Zero(t, usage.Pids)
	assert.Zero(t, usage.CPUTimeNanos)

	require.NoError(t, reg.Destroy())
	assert.NoDirExists(t, filepath.Join(memoryRoot, "instance-2"))
}

func TestRegistryDestroyMigratesResidualTasks(t *testing.T) {
	root := fakeControllerRoot(t)
	reg := New(Path{Pids: Str(root)}, "instance-3")
	require.NoError(t, reg.Create())

	instanceTasks := filepath.Join(root, "instance-3", "tasks")
	require.NoError(t, os.WriteFile(instanceTasks, []byte("101\n"), 0o644))

	// rmdir fails while the tasks file stands in for residual processes, so
	// this exercises the migration path; Destroy still reports the leftover
	// directory, which the supervisor logs and suppresses.
	err := reg.Destroy()
	assert.Error(t, err)

	rootTasks, readErr := os.ReadFile(filepath.Join(root, "tasks"))
	require.NoError(t, readErr)
	assert.Equal(t, "101", string(rootTasks))
}

func TestRegistryDestroyIsIdempotent(t *testing.T) {
	root := fakeControllerRoot(t)
	reg := New(Path{Pids: Str(root)}, "instance-4")
	require.NoError(t, reg.Create())

	require.NoError(t, reg.Destroy())
	require.NoError(t, reg.Destroy())
}

func TestRegistryNoControllersIsANoop(t *testing.T) {
	reg := New(Path{}, "instance-5")
	require.NoError(t, reg.Create())
	assert.Equal(t, Usage{}, reg.Snapshot())
	require.NoError(t, reg.Destroy())
}
