//go:build linux

package sandbox

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/judgebox/judgebox/cgroup"
)

// superviseLoop multiplexes child exit, the wall-clock deadline, and the
// user-time poll with a single epoll instance. It sends SIGKILL to
// pid the moment either timer fires and keeps waiting for the reap; the
// first timer to fire becomes the returned Timer regardless of which one
// the child would have hit next.
//
// A periodic tick is always armed, even when no user-time limit is set: the
// tick retries the reap, which covers a child that exited before the
// SIGCHLD mask below was installed (the signal is gone by then, so the
// signalfd will never report it) or whose SIGCHLD the runtime delivered to
// a thread other than this one.
func superviseLoop(pid int, limits Limits, registry *cgroup.Registry) (WaitOutcome, Timer, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	sigfd, mask, err := newSignalfd()
	if err != nil {
		return WaitOutcome{}, TimerNone, &TimerError{Err: err}
	}
	defer unix.Close(sigfd)
	defer unix.PthreadSigmask(unix.SIG_UNBLOCK, mask, nil)

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return WaitOutcome{}, TimerNone, &TimerError{Err: fmt.Errorf("epoll_create1: %w", err)}
	}
	defer unix.Close(epfd)

	if err := epollAdd(epfd, sigfd); err != nil {
		return WaitOutcome{}, TimerNone, &TimerError{Err: err}
	}

	var wallfd int = -1
	if limits.WallTime != nil {
		wallfd, err = newTimerfd(*limits.WallTime)
		if err != nil {
			return WaitOutcome{}, TimerNone, &TimerError{Err: err}
		}
		defer unix.Close(wallfd)
		if err := epollAdd(epfd, wallfd); err != nil {
			return WaitOutcome{}, TimerNone, &TimerError{Err: err}
		}
	}

	tickfd, err := newIntervalTimerfd(userTimePollInterval)
	if err != nil {
		return WaitOutcome{}, TimerNone, &TimerError{Err: err}
	}
	defer unix.Close(tickfd)
	if err := epollAdd(epfd, tickfd); err != nil {
		return WaitOutcome{}, TimerNone, &TimerError{Err: err}
	}

	timer := TimerNone

	// The child may already be gone before any fd was armed.
	if wo, reaped := tryReap(pid); reaped {
		return wo, timer, nil
	}

	events := make([]unix.EpollEvent, 4)
	for {
		n, err := unix.EpollWait(epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return WaitOutcome{}, timer, &TimerError{Err: fmt.Errorf("epoll_wait: %w", err)}
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case wallfd:
				drainTimerfd(fd)
				if timer == TimerNone {
					timer = TimerWall
					_ = unix.Kill(pid, unix.SIGKILL)
				}
			case tickfd:
				drainTimerfd(fd)
				if timer == TimerNone && limits.UserTime != nil &&
					registry.SampleCPUTime() >= uint64(limits.UserTime.Nanoseconds()) {
					timer = TimerUser
					_ = unix.Kill(pid, unix.SIGKILL)
				}
				if wo, reaped := tryReap(pid); reaped {
					return wo, timer, nil
				}
			case sigfd:
				drainSignalfd(fd)
				if wo, reaped := tryReap(pid); reaped {
					return wo, timer, nil
				}
			}
		}
	}
}

// tryReap performs a non-blocking waitpid for pid. The bool return reports
// whether pid has actually terminated.
func tryReap(pid int) (WaitOutcome, bool) {
	var ws unix.WaitStatus
	wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
	if err != nil || wpid != pid {
		return WaitOutcome{}, false
	}
	if ws.Exited() {
		return WaitOutcome{Exited: true, ExitCode: ws.ExitStatus()}, true
	}
	if ws.Signaled() {
		return WaitOutcome{Signaled: true, Signal: int32(ws.Signal())}, true
	}
	return WaitOutcome{}, false
}

func epollAdd(epfd, fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add %d: %w", fd, err)
	}
	return nil
}

func newSignalfd() (int, *unix.Sigset_t, error) {
	var set unix.Sigset_t
	sigaddset(&set, unix.SIGCHLD)
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil); err != nil {
		return -1, nil, fmt.Errorf("sigprocmask: %w", err)
	}
	fd, err := unix.Signalfd(-1, &set, unix.SFD_CLOEXEC|unix.SFD_NONBLOCK)
	if err != nil {
		_ = unix.PthreadSigmask(unix.SIG_UNBLOCK, &set, nil)
		return -1, nil, fmt.Errorf("signalfd: %w", err)
	}
	return fd, &set, nil
}

func drainSignalfd(fd int) {
	var buf [128]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}
