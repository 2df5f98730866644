package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank_Ordering(t *testing.T) {
	assert.Less(t, SeverityRank(SeverityInfo), SeverityRank(SeverityLow))
	assert.Less(t, SeverityRank(SeverityLow), SeverityRank(SeverityMedium))
	assert.Less(t, SeverityRank(SeverityMedium), SeverityRank(SeverityHigh))
	assert.Less(t, SeverityRank(SeverityHigh), SeverityRank(SeverityCritical))
}

func TestSeverityRank_Unknown(t *testing.T) {
	assert.Equal(t, -1, SeverityRank("catastrophic"))
	assert.Equal(t, -1, SeverityRank(""))
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityLow, SeverityCritical))
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityCritical, SeverityLow))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityMedium, SeverityMedium))

	// An unknown severity never outranks a known one.
	assert.Equal(t, SeverityLow, MaxSeverity(SeverityLow, "bogus"))
	assert.Equal(t, SeverityLow, MaxSeverity("bogus", SeverityLow))
}

func TestIsValidSeverity(t *testing.T) {
	assert.True(t, IsValidSeverity(SeverityInfo))
	assert.True(t, IsValidSeverity(SeverityCritical))
	assert.False(t, IsValidSeverity("INFO"))
	assert.False(t, IsValidSeverity(""))
}
