package core

// Severity levels for events, alerts, and incidents.
const (
	SeverityInfo     = "info"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// severityRank maps severities to their ordinal position. Severities not in
// the map rank below every known severity.
var severityRank = map[string]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank returns the ordinal rank of a severity. Unknown severities
// return -1 so they never outrank a real one.
func SeverityRank(severity string) int {
	if rank, ok := severityRank[severity]; ok {
		return rank
	}
	return -1
}

// MaxSeverity returns the higher-ranked of two severities. If both are
// unknown it returns the first argument unchanged.
func MaxSeverity(a, b string) string {
	if SeverityRank(b) > SeverityRank(a) {
		return b
	}
	return a
}

// IsValidSeverity reports whether the given string is a known severity level.
func IsValidSeverity(severity string) bool {
	_, ok := severityRank[severity]
	return ok
}
