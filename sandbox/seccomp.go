//go:build linux

package sandbox

import (
	"fmt"
	"maps"
	"slices"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

/**
 * Baseline deny-list applied to every run. The groups below are organized
 * by what a graded submission could do with the call if it were allowed:
 * put code into the kernel, observe or drive another process, rewire its
 * own filesystem view, or reach host-global state that no submission has
 * any business touching.
 */
var defaultDenySyscalls = []string{
	/* put code in the kernel: modules, kexec, BPF programs */
	"create_module", "init_module", "finit_module", "delete_module",
	"kexec_load", "kexec_file_load",
	"bpf",

	/* read or puppet another process's memory */
	"ptrace", "process_vm_readv", "process_vm_writev", "kcmp",

	/* rewire the mount table or the root, classic and fd-based API alike */
	"mount", "umount", "umount2", "pivot_root",
	"open_tree", "move_mount", "fsopen", "fsconfig", "fsmount", "fspick", "mount_setattr",

	/* leave or join namespaces */
	"setns", "unshare", "nsenter",

	/* file-handle lookups that sidestep path-based containment */
	"open_by_handle_at", "name_to_handle_at", "lookup_dcookie",

	/* kernel keyring: shared across the host, not per-jail */
	"add_key", "request_key", "keyctl",

	/* host clock adjustment */
	"adjtimex", "clock_adjtime", "settimeofday", "stime",

	/* host administration: reboot, quotas, accounting, legacy sysctl */
	"reboot", "quotactl", "nfsservctl", "sysfs", "_sysctl", "acct",

	/* execution-domain switching */
	"personality",

	/* kernel-wide observability and fault-delegation interfaces */
	"perf_event_open", "fanotify_init", "userfaultfd",

	/* raw port IO and legacy vm86 */
	"iopl", "ioperm", "vm86", "vm86old",

	/* NUMA policy and page migration steer host-wide placement */
	"set_mempolicy", "move_pages",

	/* io_uring: a kernel-side submission queue the filter cannot see into */
	"io_uring_setup", "io_uring_enter", "io_uring_register",
}

// nonNegotiableDeny lists syscalls a run's AllowSyscalls can never remove
// from the filter. They let a process climb back out of the namespace
// isolation the child just finished setting up (mount/pivot_root/setns/unshare)
// or inspect another process's memory (ptrace). A misconfigured or
// malicious Config.AllowSyscalls entry here would otherwise be a direct
// sandbox escape, so these stay denied regardless of what the caller asks
// for.
var nonNegotiableDeny = map[string]struct{}{
	"ptrace": {}, "process_vm_readv": {}, "process_vm_writev": {},
	"mount": {}, "umount": {}, "umount2": {}, "pivot_root": {},
	"setns": {}, "unshare": {}, "nsenter": {},
}

/**
 * A helper function to merge user-specified allow/deny syscall lists
 * with the default deny list.
 * @param userAllow list of user-allowed syscalls
 * @param userDeny list of user-denied syscalls
 * @return the final merged deny list
 */
func mergeSyscallLists(userAllow, userDeny []string) []string {
	denySet := make(map[string]struct{}, len(defaultDenySyscalls)+len(userDeny))

	// Add default deny list.
	for _, s := range defaultDenySyscalls {
		denySet[s] = struct{}{}
	}

	// Add user deny list.
	for _, s := range userDeny {
		denySet[s] = struct{}{}
	}

	// Remove any user allow overrides, except the non-negotiable set.
	for _, s := range userAllow {
		if _, locked := nonNegotiableDeny[s]; locked {
			continue
		}
		delete(denySet, s)
	}
	out := slices.Sorted(maps.Keys(denySet))
	return out
}

/**
 * SetupSeccomp installs a seccomp filter with default action ALLOW,
 * and adds ERRNO(ENOSYS) rules for all syscalls in the final deny-list, so a
 * denied call looks to the graded program like a syscall the kernel never
 * implemented rather than one it was refused permission to make.
 * Must be called in the child *after* filesystem/cgroup/uidmap work,
 * and right before Exec.
 */
func SetupSeccomp(cfg *Config) error {
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil && err != unix.EINVAL {
		return fmt.Errorf("prctl(NO_NEW_PRIVS): %w", err)
	}

	// Anything not named in the deny list passes through.
	filter, err := seccomp.NewFilter(seccomp.ActAllow)
	if err != nil {
		return err
	}
	defer filter.Release()

	denySet := mergeSyscallLists(cfg.AllowSyscalls, cfg.DenySyscalls)

	// Denied calls return ENOSYS rather than EPERM, so a program probing
	// for a syscall takes its not-implemented fallback path instead of
	// treating the refusal as an error. Names the running kernel doesn't
	// know are skipped; the list spans kernel versions.
	denyAct := seccomp.ActErrno.SetReturnCode(int16(unix.ENOSYS))
	for _, name := range denySet {
		sc, err := seccomp.GetSyscallFromName(name)
		if err != nil {
			continue
		}
		if err := filter.AddRule(sc, denyAct); err != nil {
			continue
		}
	}

	if err := filter.Load(); err != nil {
		return fmt.Errorf("seccomp: load: %w", err)
	}

	return nil
}
