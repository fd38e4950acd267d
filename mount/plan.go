//go:build linux

package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// bind performs the single bind-mount sequence described by the mount
// planner contract: ensure the destination exists inside the staging tree,
// bind-mount the source onto it, remount read-only if requested, and apply
// the NODEV/NOEXEC/NOSUID flags.
func bind(root string, m Mount) error {
	if root == "" || m.Source == "" || m.Destination == "" {
		return unix.EINVAL
	}
	target := filepath.Join(root, m.Destination)

	st := &unix.Stat_t{}
	if err := unix.Stat(m.Source, st); err != nil {
		return fmt.Errorf("stat %s: %w", m.Source, err)
	}

	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
	case unix.S_IFREG, unix.S_IFCHR, unix.S_IFBLK, unix.S_IFIFO, unix.S_IFSOCK:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE, 0o644)
		if err != nil {
			return err
		}
		_ = f.Close()
	case unix.S_IFLNK:
		return fmt.Errorf("bind-mounting symlinks is not supported: %s", m.Source)
	default:
		return fmt.Errorf("unsupported source file type: %s", m.Source)
	}

	if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s -> %s: %w", m.Source, target, err)
	}

	// The VFS flags are ignored on the initial MS_BIND call; the kernel only
	// honors them on a remount. The remount therefore runs for every mount,
	// not just read-only ones: NOSUID is unconditional, NODEV/NOEXEC apply
	// unless the mount opts into devices/exec, and RDONLY is layered on top
	// when requested.
	remountFlags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_NOSUID)
	if !m.Options.Dev {
		remountFlags |= unix.MS_NODEV
	}
	if !m.Options.Exec {
		remountFlags |= unix.MS_NOEXEC
	}
	if m.Options.ReadOnly {
		remountFlags |= unix.MS_RDONLY
	}
	if err := unix.Mount("", target, "", remountFlags, ""); err != nil {
		return fmt.Errorf("remount %s: %w", target, err)
	}
	return nil
}

// Apply stages every mount in the plan, in order. Later mounts may
// deliberately shadow destinations created by earlier ones.
func Apply(root string, mounts []Mount) error {
	for _, m := range mounts {
		if err := bind(root, m); err != nil {
			return err
		}
	}
	return nil
}

// PivotTo makes root become "/" for the calling process's mount namespace,
// detaching and removing the former root. The caller must already be running
// in a fresh mount namespace and must have made root a mount point
// (pivot_root refuses a plain directory); binding root onto itself before
// staging, as the child does, satisfies both.
func PivotTo(root string) error {
	if err := os.Chdir(root); err != nil {
		return fmt.Errorf("chdir %s: %w", root, err)
	}

	if err := os.MkdirAll(".old_root", 0o700); err != nil {
		return fmt.Errorf("mkdir .old_root: %w", err)
	}

	if err := unix.PivotRoot(".", ".old_root"); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	if err := unix.Unmount("/.old_root", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}

	return os.Remove("/.old_root")
}
