//go:build linux

package sandbox

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/judgebox/judgebox/mount"
)

// runChild performs the child-side setup sequence: sync with the parent,
// pivot into the jail, apply stdio redirections and resource limits, drop
// capabilities, load seccomp, exec. It never returns: on success it
// replaces the process image with cfg.Command; when redirection, jail
// setup, capability drop, seccomp load or exec fails it writes a status
// record to statusWfd and exits 255. If WaitForParent fails, it exits 255
// without writing a record. Errors from Setsid, Sethostname and the
// RLIMIT_STACK setrlimit are ignored. syncRfd is closed by WaitForParent
// before any jail setup begins.
func runChild(cfg *Config, syncRfd, statusWfd int) {
	if err := WaitForParent(syncRfd); err != nil {
		unix.Exit(255)
	}

	if cfg.Interactive != InteractiveMode {
		_, _ = unix.Setsid()
	}

	if cfg.Hostname != "" {
		_ = unix.Sethostname([]byte(cfg.Hostname))
	}

	var preStdin, preStdout, preStderr *os.File
	if cfg.SwapRedirects == NoSwapRedirects {
		var err error
		preStdin, preStdout, preStderr, err = openRedirects(cfg)
		if err != nil {
			writeStatus(statusWfd, statusKindSetup, byte(SetupRedirect), int32(errnoOf(err)))
			unix.Exit(255)
		}
	}

	if cfg.NewRoot != "" {
		if err := pivotInto(cfg); err != nil {
			op, errno := mountFailure(err)
			writeStatus(statusWfd, statusKindMount, byte(op), int32(errno))
			unix.Exit(255)
		}
	}

	var stdin, stdout, stderr *os.File
	if cfg.SwapRedirects == NoSwapRedirects {
		stdin, stdout, stderr = preStdin, preStdout, preStderr
	} else {
		var err error
		stdin, stdout, stderr, err = openRedirects(cfg)
		if err != nil {
			writeStatus(statusWfd, statusKindSetup, byte(SetupRedirect), int32(errnoOf(err)))
			unix.Exit(255)
		}
	}
	applyStdio(stdin, stdout, stderr)

	if cfg.Limits.Stack != nil {
		rlim := unix.Rlimit{Cur: cfg.Limits.Stack.Bytes(), Max: cfg.Limits.Stack.Bytes()}
		_ = unix.Setrlimit(unix.RLIMIT_STACK, &rlim)
	}

	if err := cfg.Capabilities.Apply(cfg.Network, cfg.NewRoot != ""); err != nil {
		writeStatus(statusWfd, statusKindSetup, byte(SetupCapability), int32(errnoOf(err)))
		unix.Exit(255)
	}

	if err := SetupSeccomp(cfg); err != nil {
		writeStatus(statusWfd, statusKindSetup, byte(SetupSeccompFilter), int32(errnoOf(err)))
		unix.Exit(255)
	}

	argv := append([]string{filepath.Base(cfg.Command)}, cfg.Args...)
	envp := cfg.Environment.ToStringArray()

	err := unix.Exec(cfg.Command, argv, envp)
	writeStatus(statusWfd, statusKindExec, 0, int32(errnoOf(err)))
	unix.Exit(255)
}

// pivotInto performs the bind-self, stage, pivot_root, unmount-old-root
// sequence that turns cfg.NewRoot into the child's "/".
func pivotInto(cfg *Config) error {
	newRoot := cfg.NewRoot
	if err := unix.Mount(newRoot, newRoot, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return &MountError{Op: MountBind, Err: err}
	}

	var tmpSizeBytes uint64
	if cfg.Limits.Memory != nil {
		tmpSizeBytes = cfg.Limits.Memory.Bytes()
	}
	interactive := cfg.Interactive == InteractiveMode

	if err := mount.Stage(newRoot, cfg.Mounts, cfg.Nameservers, cfg.Hostname, cfg.InstanceName, interactive, tmpSizeBytes); err != nil {
		return &MountError{Op: MountBind, Err: err}
	}
	if err := mount.PivotTo(newRoot); err != nil {
		return &MountError{Op: MountPivot, Err: err}
	}
	return nil
}

// openRedirects opens the configured stdio redirection files, resolving
// paths against whatever the process's current root is at the time of the
// call — the outer filesystem before pivot, the jail after.
func openRedirects(cfg *Config) (stdin, stdout, stderr *os.File, err error) {
	if cfg.RedirectStdin != "" {
		stdin, err = os.Open(cfg.RedirectStdin)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if cfg.RedirectStdout != "" {
		stdout, err = os.OpenFile(cfg.RedirectStdout, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if cfg.RedirectStderr != "" {
		stderr, err = os.OpenFile(cfg.RedirectStderr, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return stdin, stdout, stderr, nil
}

func applyStdio(stdin, stdout, stderr *os.File) {
	if stdin != nil {
		_ = unix.Dup2(int(stdin.Fd()), 0)
		_ = stdin.Close()
	}
	if stdout != nil {
		_ = unix.Dup2(int(stdout.Fd()), 1)
		_ = stdout.Close()
	}
	if stderr != nil {
		_ = unix.Dup2(int(stderr.Fd()), 2)
		_ = stderr.Close()
	}
}

func mountFailure(err error) (MountOp, unix.Errno) {
	var me *MountError
	if errors.As(err, &me) {
		return me.Op, errnoOf(me.Err)
	}
	return MountBind, errnoOf(err)
}

func errnoOf(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}
