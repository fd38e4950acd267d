package sandbox

import "github.com/judgebox/judgebox/cgroup"

// Timer identifies which, if any, of the supervisor's two timers fired
// before the child was reaped.
type Timer int

const (
	TimerNone Timer = iota
	TimerWall
	TimerUser
)

// WaitOutcome is the supervisor's own decoding of a waitpid status, kept
// separate from the raw unix.WaitStatus so Classify can be unit tested
// without a real child process.
type WaitOutcome struct {
	Exited   bool
	ExitCode int
	Signaled bool
	Signal   int32
}

// Classify applies the total classification function over a wait outcome, a
// cgroup usage snapshot, the limits in force, and which timer (if any) won
// the race in the supervisor's event loop. Exactly one Result is returned.
func Classify(wait WaitOutcome, usage cgroup.Usage, limits Limits, timer Timer) Result {
	if timer == TimerWall {
		return WallTimeExceeded
	}
	if timer == TimerUser {
		return UserTimeExceeded
	}
	if limits.UserTime != nil && usage.CPUTimeNanos >= uint64(limits.UserTime.Nanoseconds()) {
		return UserTimeExceeded
	}
	if limits.Memory != nil && usage.MemoryBytes >= limits.Memory.Bytes() {
		return MemoryLimitExceeded
	}
	if wait.Exited && wait.ExitCode == 0 {
		return Success
	}
	if wait.Exited {
		return NonZeroExitStatus
	}
	return KilledBySignal
}
