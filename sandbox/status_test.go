package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func pipePair(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestStatusRoundTripExec(t *testing.T) {
	r, w := pipePair(t)

	writeStatus(w, statusKindExec, 0, int32(unix.ENOENT))
	_ = unix.Close(w)

	rec, err := readStatus(r)
	require.NoError(t, err)

	err = decodeStatus(rec)
	var childErr *ChildError
	require.True(t, errors.As(err, &childErr))

	var execErr *ExecError
	require.True(t, errors.As(childErr, &execErr))
	assert.Equal(t, unix.ENOENT, execErr.Errno)
}

func TestStatusRoundTripMount(t *testing.T) {
	r, w := pipePair(t)

	writeStatus(w, statusKindMount, byte(MountPivot), int32(unix.EACCES))
	_ = unix.Close(w)

	rec, err := readStatus(r)
	require.NoError(t, err)

	err = decodeStatus(rec)
	var mountErr *MountError
	require.True(t, errors.As(err, &mountErr))
	assert.Equal(t, MountPivot, mountErr.Op)
	assert.Equal(t, unix.EACCES, mountErr.Err)
}

func TestStatusRoundTripSetup(t *testing.T) {
	r, w := pipePair(t)

	writeStatus(w, statusKindSetup, byte(SetupCapability), int32(unix.EPERM))
	_ = unix.Close(w)

	rec, err := readStatus(r)
	require.NoError(t, err)

	err = decodeStatus(rec)
	var setupErr *SetupError
	require.True(t, errors.As(err, &setupErr))
	assert.Equal(t, SetupCapability, setupErr.Op)
	assert.Equal(t, unix.EPERM, setupErr.Err)
}

func TestStatusCleanExecSuccess(t *testing.T) {
	r, w := pipePair(t)
	_ = unix.Close(w)

	rec, err := readStatus(r)
	require.NoError(t, err)
	assert.Empty(t, rec)
}

func TestDecodeStatusMalformedRecord(t *testing.T) {
	err := decodeStatus([]byte{1, 2})
	assert.ErrorIs(t, err.(*ChildError).Err, ErrPipeError)
}
