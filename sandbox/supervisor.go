//go:build linux

package sandbox

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/judgebox/judgebox/cgroup"
	"github.com/judgebox/judgebox/logger"
	"github.com/judgebox/judgebox/net"
)

// cloneArgs mirrors struct clone_args from uapi/linux/sched.h, the ABI the
// clone3 syscall expects.
type cloneArgs struct {
	Flags      uint64
	Pidfd      uint64
	ChildTid   uint64
	ParentTid  uint64
	ExitSignal uint64
	Stack      uint64
	StackSize  uint64
	TLS        uint64
	SetTid     uint64
	SetTidSize uint64
	Cgroup     uint64
}

var defaultFlags = unix.CLONE_NEWPID |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWIPC |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWUSER

func cloneFlags(cfg *Config) uintptr {
	flags := defaultFlags
	if cfg.ShareNet == Unshare {
		flags |= unix.CLONE_NEWNET
	}
	return uintptr(flags)
}

const userTimePollInterval = 100 * time.Millisecond

// Run is the single entry point: it executes cfg under full isolation and
// resource supervision, and returns the classified outcome. A non-nil error
// means the engine itself failed, not that the graded program misbehaved;
// see the package-level error kinds for the distinction.
func Run(cfg *Config) (RunInfo, error) {
	if err := validate(cfg); err != nil {
		return RunInfo{}, &ConfigError{Reason: err.Error()}
	}

	instance := cfg.InstanceName
	if instance == "" {
		instance = uuid.New().String()
		// Recorded on cfg, not just the local variable, so the forked
		// child below (which shares this process image at clone3 time)
		// can log and name its own resources under the same instance.
		cfg.InstanceName = instance
	}

	log := logger.WithInstance(logger.Log, instance)

	statusRfd, statusWfd, err := MakeSyncPipe()
	if err != nil {
		return RunInfo{}, &ChildError{Err: err}
	}
	syncRfd, syncWfd, err := MakeSyncPipe()
	if err != nil {
		ClosePipe(statusRfd, statusWfd)
		return RunInfo{}, &ChildError{Err: err}
	}
	closePipes := func() {
		ClosePipe(statusRfd, statusWfd)
		ClosePipe(syncRfd, syncWfd)
	}

	registry := cgroup.New(cfg.ControllerPath, instance)
	if err := registry.Create(); err != nil {
		closePipes()
		return RunInfo{}, &CgroupError{Op: CgroupCreate, Err: err}
	}
	defer func() {
		if err := registry.Destroy(); err != nil {
			log.Warn("cgroup teardown failed", slog.Any("err", err))
		}
	}()

	if cfg.ClearUsage == DoClearUsage {
		if err := registry.ClearUsage(); err != nil {
			closePipes()
			return RunInfo{}, &CgroupError{Op: CgroupWrite, Err: err}
		}
	}
	memLimit, pidsLimit := limitPointers(cfg.Limits)
	if err := registry.WriteLimits(memLimit, pidsLimit); err != nil {
		closePipes()
		return RunInfo{}, &CgroupError{Op: CgroupWrite, Err: err}
	}

	pid, err := cloneChild(cfg, syncRfd, statusWfd)
	if err != nil {
		closePipes()
		return RunInfo{}, err
	}
	_ = unix.Close(syncRfd)
	_ = unix.Close(statusWfd)

	start := time.Now()

	if err := SetupIdMappings(pid, log); err != nil {
		killAndReap(pid)
		_ = unix.Close(statusRfd)
		_ = unix.Close(syncWfd)
		return RunInfo{}, err
	}

	if err := registry.Attach(pid); err != nil {
		killAndReap(pid)
		_ = unix.Close(statusRfd)
		_ = unix.Close(syncWfd)
		return RunInfo{}, &CgroupError{Op: CgroupWrite, Err: err}
	}

	var netResult *net.NetworkResult
	if cfg.ShareNet == Unshare && cfg.Network == net.NetBridge {
		netResult, err = net.SetupContainerNetworking(net.NetworkConfig{ChildPID: pid, Mode: cfg.Network, Instance: instance})
		if err != nil {
			killAndReap(pid)
			_ = unix.Close(statusRfd)
			_ = unix.Close(syncWfd)
			return RunInfo{}, fmt.Errorf("setup networking: %w", err)
		}
		defer func() {
			if err := netResult.Cleanup(); err != nil {
				log.Warn("network teardown failed", slog.Any("err", err))
			}
		}()
	}

	if err := SignalChild(syncWfd); err != nil {
		killAndReap(pid)
		_ = unix.Close(statusRfd)
		return RunInfo{}, &ChildError{Err: err}
	}

	wait, timer, waitErr := superviseLoop(pid, cfg.Limits, registry)
	wallTime := time.Since(start)
	if waitErr != nil {
		// The child may still be alive; kill and reap it before surfacing
		// the failure so the process tree is never left orphaned. Reading
		// the status pipe first would block on the child's open write end.
		killAndReap(pid)
		_ = unix.Close(statusRfd)
		return RunInfo{}, waitErr
	}

	rec, readErr := readStatus(statusRfd)
	_ = unix.Close(statusRfd)
	if readErr != nil {
		log.Warn("status pipe read failed", slog.Any("err", readErr))
	}
	if len(rec) > 0 {
		return RunInfo{}, decodeStatus(rec)
	}

	usage := registry.Snapshot()
	result := Classify(wait, usage, cfg.Limits, timer)

	info := RunInfo{
		Result:   result,
		WallTime: wallTime,
		UserTime: time.Duration(usage.CPUTimeNanos),
		Memory:   SpaceUsageFromBytes(usage.MemoryBytes),
	}
	if result == NonZeroExitStatus {
		info.ExitStatus = uint8(wait.ExitCode)
	}
	if result == KilledBySignal {
		info.Signal = wait.Signal
	}
	return info, nil
}

func validate(cfg *Config) error {
	if cfg.Command == "" {
		return fmt.Errorf("command must not be empty")
	}
	if cfg.NewRoot == "" && cfg.SwapRedirects == DoSwapRedirects {
		return fmt.Errorf("swap_redirects requires new_root to be set")
	}
	if cfg.SwapRedirects == DoSwapRedirects {
		// Jail-resolved redirect paths must name a location inside the
		// jail unambiguously: relative paths depend on whatever the
		// working directory is after pivot, and ".." components are an
		// attempt to climb out of the root the paths are about to be
		// resolved against. Both contradict swap_redirects and are
		// rejected here, before fork, rather than failing deep inside
		// the child.
		for _, p := range []string{cfg.RedirectStdin, cfg.RedirectStdout, cfg.RedirectStderr} {
			if p == "" {
				continue
			}
			if !filepath.IsAbs(p) {
				return fmt.Errorf("redirection path %q must be absolute when resolved inside the jail", p)
			}
			for _, elem := range strings.Split(p, "/") {
				if elem == ".." {
					return fmt.Errorf("redirection path %q would escape the jail", p)
				}
			}
		}
	}
	return nil
}

func limitPointers(l Limits) (memory *uint64, pids *int64) {
	if l.Memory != nil {
		v := l.Memory.Bytes()
		memory = &v
	}
	if l.Pids != nil {
		v := *l.Pids
		pids = &v
	}
	return memory, pids
}

// cloneChild forks the child via clone3 and, in the child branch, never
// returns: it calls runChild directly, which exits the process. The parent
// branch returns the child's pid.
func cloneChild(cfg *Config, syncRfd, statusWfd int) (int, error) {
	args := cloneArgs{
		Flags:      uint64(cloneFlags(cfg)),
		ExitSignal: uint64(unix.SIGCHLD),
	}

	pid, _, errno := unix.Syscall(unix.SYS_CLONE3, uintptr(unsafe.Pointer(&args)), unsafe.Sizeof(args), 0)
	if errno != 0 {
		return 0, fmt.Errorf("clone3: %w", errno)
	}
	if pid == 0 {
		runChild(cfg, syncRfd, statusWfd)
		unix.Exit(255)
	}
	return int(pid), nil
}

func killAndReap(pid int) {
	_ = unix.Kill(pid, unix.SIGKILL)
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		break
	}
}
