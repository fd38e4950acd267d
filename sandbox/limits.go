package sandbox

import "time"

// Limits bundles the optional resource caps enforced on a single run.
// A zero value (nil pointer fields) means "unenforced" for that dimension.
type Limits struct {

	// WallTime bounds real elapsed time from fork to reap.
	WallTime *time.Duration

	// UserTime bounds the sum of CPU user time across the process tree,
	// sampled from the cpuacct controller.
	UserTime *time.Duration

	// Memory bounds the peak resident set, as seen by
	// memory.max_usage_in_bytes.
	Memory *SpaceUsage

	// Stack bounds the per-thread stack soft limit (RLIMIT_STACK).
	Stack *SpaceUsage

	// Pids bounds the maximum number of concurrent tasks in the cgroup.
	Pids *int64
}

/**
 * @return a duration pointer wrapping d, for populating a Limits literal.
 */
func Duration(d time.Duration) *time.Duration {
	return &d
}

/**
 * @return a SpaceUsage pointer wrapping s, for populating a Limits literal.
 */
func Space(s SpaceUsage) *SpaceUsage {
	return &s
}

/**
 * @return an int64 pointer wrapping n, for populating a Limits literal.
 */
func Count(n int64) *int64 {
	return &n
}
