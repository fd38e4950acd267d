package sandbox

import (
	"testing"
	"time"

	"github.com/judgebox/judgebox/cgroup"
	"github.com/stretchr/testify/assert"
)

func TestClassifyWallTimerWins(t *testing.T) {
	wait := WaitOutcome{Exited: true, ExitCode: 0}
	limits := Limits{UserTime: Duration(time.Second), Memory: Space(SpaceUsageFromMebibytes(1))}
	usage := cgroup.Usage{CPUTimeNanos: 10, MemoryBytes: 10}

	assert.Equal(t, WallTimeExceeded, Classify(wait, usage, limits, TimerWall))
}

func TestClassifyUserTimerWinsOverMemory(t *testing.T) {
	wait := WaitOutcome{Exited: true, ExitCode: 0}
	limits := Limits{Memory: Space(SpaceUsageFromMebibytes(1))}
	usage := cgroup.Usage{MemoryBytes: SpaceUsageFromGibibytes(1).Bytes()}

	assert.Equal(t, UserTimeExceeded, Classify(wait, usage, limits, TimerUser))
}

func TestClassifyUserTimeLimitWithoutTimerFiring(t *testing.T) {
	limits := Limits{UserTime: Duration(500 * time.Millisecond)}
	usage := cgroup.Usage{CPUTimeNanos: uint64((600 * time.Millisecond).Nanoseconds())}

	got := Classify(WaitOutcome{Exited: true}, usage, limits, TimerNone)
	assert.Equal(t, UserTimeExceeded, got)
}

func TestClassifyMemoryLimitExceeded(t *testing.T) {
	limits := Limits{Memory: Space(SpaceUsageFromMebibytes(64))}
	usage := cgroup.Usage{MemoryBytes: SpaceUsageFromMebibytes(65).Bytes()}

	got := Classify(WaitOutcome{Exited: true}, usage, limits, TimerNone)
	assert.Equal(t, MemoryLimitExceeded, got)
}

func TestClassifySuccess(t *testing.T) {
	wait := WaitOutcome{Exited: true, ExitCode: 0}
	got := Classify(wait, cgroup.Usage{}, Limits{}, TimerNone)
	assert.Equal(t, Success, got)
}

func TestClassifyNonZeroExitStatus(t *testing.T) {
	wait := WaitOutcome{Exited: true, ExitCode: 7}
	got := Classify(wait, cgroup.Usage{}, Limits{}, TimerNone)
	assert.Equal(t, NonZeroExitStatus, got)
}

func TestClassifyKilledBySignal(t *testing.T) {
	wait := WaitOutcome{Signaled: true, Signal: 9}
	got := Classify(wait, cgroup.Usage{}, Limits{}, TimerNone)
	assert.Equal(t, KilledBySignal, got)
}

func TestClassifyIsTotal(t *testing.T) {
	// Every combination of the boolean dimensions below must resolve to
	// exactly one of the six Result variants, never panicking.
	timers := []Timer{TimerNone, TimerWall, TimerUser}
	waits := []WaitOutcome{
		{Exited: true, ExitCode: 0},
		{Exited: true, ExitCode: 1},
		{Signaled: true, Signal: 11},
	}
	usages := []cgroup.Usage{{}, {CPUTimeNanos: 1, MemoryBytes: 1}}
	limits := Limits{UserTime: Duration(time.Nanosecond), Memory: Space(SpaceUsageFromBytes(0))}

	for _, timer := range timers {
		for _, wait := range waits {
			for _, usage := range usages {
				result := Classify(wait, usage, limits, timer)
				assert.True(t, result >= Success && result <= MemoryLimitExceeded)
			}
		}
	}
}
