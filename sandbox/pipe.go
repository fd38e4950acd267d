//go:build linux

package sandbox

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// parentSyncTimeout bounds how long the child waits on the sync pipe in
// WaitForParent. Without a bound, a supervisor that dies between forking
// the child and reaching SignalChild (for instance, killed while still
// setting up the cgroup or id mappings) would leave the child blocked on
// read(2) forever, holding its pid/user/mount namespaces open with nothing
// left to reap it.
const parentSyncTimeout = 30 * time.Second

// MakeSyncPipe creates a pipe used for parent/child handshakes. The pipe is
// created with O_CLOEXEC so the file descriptors don't leak across the
// child's eventual execve.
func MakeSyncPipe() (int, int, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return p[0], p[1], nil
}

// WaitForParent blocks until the parent writes to wfd (see SignalChild) or
// parentSyncTimeout elapses, then closes rfd. It returns an error either way
// a byte never arrives: on timeout, or if the parent closed its end without
// writing (e.g. it died first).
func WaitForParent(rfd int) error {
	defer unix.Close(rfd)

	fds := []unix.PollFd{{Fd: int32(rfd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(parentSyncTimeout.Milliseconds()))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("sync pipe: parent did not signal within %s", parentSyncTimeout)
	}

	var one [1]byte
	m, err := unix.Read(rfd, one[:])
	if err != nil {
		return err
	}
	if m == 0 {
		return fmt.Errorf("sync pipe: parent closed its end without signalling")
	}
	return nil
}

// SignalChild releases a child blocked in WaitForParent by writing a single
// byte to wfd, then closes wfd.
func SignalChild(wfd int) error {
	_, err := unix.Write(wfd, []byte{1})
	cerr := unix.Close(wfd)
	if err != nil {
		return err
	}
	return cerr
}

// ClosePipe closes both ends of a sync pipe that was never handed off to a
// child, e.g. because clone3 itself failed.
func ClosePipe(rfd, wfd int) {
	_ = unix.Close(rfd)
	_ = unix.Close(wfd)
}
