package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpaceUsageConversions(t *testing.T) {
	assert.Equal(t, uint64(1_000), SpaceUsageFromKilobytes(1).Bytes())
	assert.Equal(t, uint64(1_000_000), SpaceUsageFromMegabytes(1).Bytes())
	assert.Equal(t, uint64(1_000_000_000), SpaceUsageFromGigabytes(1).Bytes())
	assert.Equal(t, uint64(1<<10), SpaceUsageFromKibibytes(1).Bytes())
	assert.Equal(t, uint64(1<<20), SpaceUsageFromMebibytes(1).Bytes())
	assert.Equal(t, uint64(1<<30), SpaceUsageFromGibibytes(1).Bytes())
}

func TestSpaceUsageLess(t *testing.T) {
	small := SpaceUsageFromBytes(10)
	big := SpaceUsageFromBytes(20)
	assert.True(t, small.Less(big))
	assert.False(t, big.Less(small))
}

func TestSpaceUsageString(t *testing.T) {
	assert.Equal(t, "1 gibibytes", SpaceUsageFromGibibytes(1).String())
	assert.Equal(t, "2 mebibytes", SpaceUsageFromMebibytes(2).String())
	assert.Equal(t, "512 bytes", SpaceUsageFromBytes(512).String())
}

// Zero is deliberately reported as "0 bytes", not "0 gibibytes": zero
// divides every unit evenly, so the largest-unit rule alone would always
// pick the largest one.
func TestSpaceUsageStringZero(t *testing.T) {
	assert.Equal(t, "0 bytes", SpaceUsageFromBytes(0).String())
}
