package sandbox

import "fmt"

// SpaceUsage is an immutable byte count. It is always constructed through one
// of the unit-specific helpers below so that call sites read naturally
// ("SpaceUsageFromMebibytes(64)" rather than a bare integer of ambiguous
// scale).
type SpaceUsage struct {
	bytes uint64
}

/**
 * @return a SpaceUsage representing the given number of raw bytes.
 */
func SpaceUsageFromBytes(bytes uint64) SpaceUsage {
	return SpaceUsage{bytes: bytes}
}

/**
 * @return a SpaceUsage representing the given number of kilobytes (10^3 bytes).
 */
func SpaceUsageFromKilobytes(kilobytes uint64) SpaceUsage {
	return SpaceUsageFromBytes(kilobytes * 1_000)
}

/**
 * @return a SpaceUsage representing the given number of megabytes (10^6 bytes).
 */
func SpaceUsageFromMegabytes(megabytes uint64) SpaceUsage {
	return SpaceUsageFromKilobytes(megabytes * 1_000)
}

/**
 * @return a SpaceUsage representing the given number of gigabytes (10^9 bytes).
 */
func SpaceUsageFromGigabytes(gigabytes uint64) SpaceUsage {
	return SpaceUsageFromMegabytes(gigabytes * 1_000)
}

/**
 * @return a SpaceUsage representing the given number of kibibytes (2^10 bytes).
 */
func SpaceUsageFromKibibytes(kibibytes uint64) SpaceUsage {
	return SpaceUsageFromBytes(kibibytes * 1_024)
}

/**
 * @return a SpaceUsage representing the given number of mebibytes (2^20 bytes).
 */
func SpaceUsageFromMebibytes(mebibytes uint64) SpaceUsage {
	return SpaceUsageFromKibibytes(mebibytes * 1_024)
}

/**
 * @return a SpaceUsage representing the given number of gibibytes (2^30 bytes).
 */
func SpaceUsageFromGibibytes(gibibytes uint64) SpaceUsage {
	return SpaceUsageFromMebibytes(gibibytes * 1_024)
}

// Bytes returns the raw byte count.
func (s SpaceUsage) Bytes() uint64 {
	return s.bytes
}

// Kilobytes returns the byte count truncated down to whole kilobytes.
func (s SpaceUsage) Kilobytes() uint64 {
	return s.bytes / 1_000
}

// Less reports whether s represents fewer bytes than other.
func (s SpaceUsage) Less(other SpaceUsage) bool {
	return s.bytes < other.bytes
}

// String renders the usage using the largest unit that divides it evenly,
// preferring binary (kibi/mebi/gibi) units over decimal ones when both apply.
// Zero is special-cased to "0 bytes" rather than "0 gibibytes": zero divides
// every unit evenly, so the largest-unit rule alone would always pick the
// largest one, which reads as a strange way to report "nothing measured".
func (s SpaceUsage) String() string {
	switch {
	case s.bytes != 0 && s.bytes%(1<<30) == 0:
		return fmt.Sprintf("%d gibibytes", s.bytes>>30)
	case s.bytes != 0 && s.bytes%(1<<20) == 0:
		return fmt.Sprintf("%d mebibytes", s.bytes>>20)
	case s.bytes != 0 && s.bytes%(1<<10) == 0:
		return fmt.Sprintf("%d kibibytes", s.bytes>>10)
	case s.bytes != 0 && s.bytes%1_000_000_000 == 0:
		return fmt.Sprintf("%d gigabytes", s.bytes/1_000_000_000)
	case s.bytes != 0 && s.bytes%1_000_000 == 0:
		return fmt.Sprintf("%d megabytes", s.bytes/1_000_000)
	case s.bytes != 0 && s.bytes%1_000 == 0:
		return fmt.Sprintf("%d kilobytes", s.bytes/1_000)
	default:
		return fmt.Sprintf("%d bytes", s.bytes)
	}
}
