package sandbox

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// Status-pipe record kinds. The child writes at most one of these before
// exiting; an empty read by the parent means execve succeeded.
const (
	statusKindExec  byte = 1
	statusKindMount byte = 2
	statusKindSetup byte = 3
)

const statusRecordLen = 1 + 1 + 4 // kind, op, errno (int32 LE)

// writeStatus encodes and writes one status record. It is called from the
// child, which is about to exit, so write errors are not actionable and are
// ignored.
func writeStatus(fd int, kind byte, op byte, errno int32) {
	var buf [statusRecordLen]byte
	buf[0] = kind
	buf[1] = op
	binary.LittleEndian.PutUint32(buf[2:], uint32(errno))
	_, _ = unix.Write(fd, buf[:])
}

// readStatus reads the status pipe until EOF or until one full record has
// arrived, and returns the raw bytes. A zero-length result means the child
// execed successfully; anything else is handed to decodeStatus.
func readStatus(fd int) ([]byte, error) {
	buf := make([]byte, statusRecordLen)
	n := 0
	for n < len(buf) {
		m, err := unix.Read(fd, buf[n:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, err
		}
		if m == 0 {
			break
		}
		n += m
	}
	return buf[:n], nil
}

// decodeStatus turns a status record into the ChildError it represents. An
// empty record is not an error and is not handled here.
func decodeStatus(rec []byte) error {
	if len(rec) != statusRecordLen {
		return &ChildError{Err: ErrPipeError}
	}
	kind := rec[0]
	op := rec[1]
	errno := int32(binary.LittleEndian.Uint32(rec[2:]))
	switch kind {
	case statusKindExec:
		return &ChildError{Err: &ExecError{Errno: unix.Errno(errno)}}
	case statusKindMount:
		return &ChildError{Err: &MountError{Op: MountOp(op), Err: unix.Errno(errno)}}
	case statusKindSetup:
		return &ChildError{Err: &SetupError{Op: SetupOp(op), Err: unix.Errno(errno)}}
	default:
		return &ChildError{Err: ErrPipeError}
	}
}
