package go_playsight

// DefaultEarlyStartGap is the fallback early-start gap in seconds: how far
// playback must advance past the last convert position before a freshly
// started stream counts as fully in-stream.
const DefaultEarlyStartGap = 30

// Per-platform early-start gaps. These values come from analytics and are
// refreshed periodically; deployments override them via configuration
// rather than editing this table.
var earlyStartGaps = map[string]int{
	"web":            30,
	"mobile-ios":     20,
	"mobile-android": 25,
	"tv-lg":          45,
	"tv-samsung":     45,
	"tv-android":     40,
	"settop":         60,
}

// EarlyStartGap returns the early-start gap in seconds for the given
// platform identifier, falling back to DefaultEarlyStartGap.
func EarlyStartGap(platform string) int {
	if gap, ok := earlyStartGaps[platform]; ok {
		return gap
	}
	return DefaultEarlyStartGap
}

// SetEarlyStartGaps merges configuration overrides into the platform table.
// Call once at startup, before any tracker is created.
func SetEarlyStartGaps(overrides map[string]int) {
	for platform, gap := range overrides {
		if gap > 0 {
			earlyStartGaps[platform] = gap
		}
	}
}
