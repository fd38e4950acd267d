//go:build linux

package sandbox

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// newTimerfd creates a one-shot timerfd that fires once after d.
func newTimerfd(d time.Duration) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("timerfd_create: %w", err)
	}
	spec := unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("timerfd_settime: %w", err)
	}
	return fd, nil
}

// newIntervalTimerfd creates a repeating timerfd that fires every d, first
// firing after d.
func newIntervalTimerfd(d time.Duration) (int, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC|unix.TFD_NONBLOCK)
	if err != nil {
		return -1, fmt.Errorf("timerfd_create: %w", err)
	}
	ts := unix.NsecToTimespec(d.Nanoseconds())
	spec := unix.ItimerSpec{Value: ts, Interval: ts}
	if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("timerfd_settime: %w", err)
	}
	return fd, nil
}

func drainTimerfd(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	s := uint(sig) - 1
	set.Val[s/64] |= 1 << (s % 64)
}
