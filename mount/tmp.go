//go:build linux

package mount

import (
	"fmt"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// defaultTmpSizeBytes sizes /tmp when the run carries no memory limit.
const defaultTmpSizeBytes = 64 << 20

// MountTmp stages an ephemeral tmpfs at /tmp inside the jail, sized to the
// run's own memory limit when one is set. Without this, /tmp would be a
// plain directory on the jail root — writable disk that outlives the run
// and isn't charged against any limit judgebox enforces. Backing it with a
// tmpfs capped at the memory budget means a submission that tries to fill
// /tmp can only do so at the expense of its own cgroup accounting, not the
// grading host's disk.
func MountTmp(base string, memoryLimitBytes uint64) error {
	if base == "" {
		return nil
	}

	tmp := path.Join(base, "/tmp")
	if err := os.MkdirAll(tmp, 0o1777); err != nil {
		return err
	}

	size := memoryLimitBytes
	if size == 0 {
		size = defaultTmpSizeBytes
	}
	opts := fmt.Sprintf("mode=1777,size=%d", size)
	if err := unix.Mount("tmpfs", tmp, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, opts); err != nil {
		return fmt.Errorf("mount tmpfs on /tmp: %w", err)
	}
	return nil
}
