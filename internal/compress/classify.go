package compress

import "strings"

// ContentClass drives how aggressively content may be compressed.
type ContentClass string

const (
	// ClassFramework is fixed framework or persona text. Never compressed.
	ClassFramework ContentClass = "framework"
	// ClassSession is operational or session metadata.
	ClassSession ContentClass = "session"
	// ClassUser is user-authored or source content. Highest quality floor.
	ClassUser ContentClass = "user"
	// ClassWorking is derived or intermediate analysis output. Most
	// aggressive compression allowed.
	ClassWorking ContentClass = "working"
)

// Classify maps content and its declared origin to a ContentClass. The origin
// hint wins when it names a known class; otherwise lightweight content
// heuristics decide, defaulting to the conservative user class.
func Classify(content, origin string) ContentClass {
	switch ContentClass(strings.ToLower(strings.TrimSpace(origin))) {
	case ClassFramework:
		return ClassFramework
	case ClassSession:
		return ClassSession
	case ClassUser:
		return ClassUser
	case ClassWorking:
		return ClassWorking
	}

	trimmed := strings.TrimSpace(content)
	lower := strings.ToLower(trimmed)

	switch {
	case strings.HasPrefix(lower, "persona:") || strings.HasPrefix(lower, "system:"):
		return ClassFramework
	case strings.HasPrefix(trimmed, "{") && strings.Contains(lower, "session"):
		return ClassSession
	case strings.HasPrefix(lower, "analysis:") || strings.HasPrefix(lower, "summary:") ||
		strings.HasPrefix(lower, "derived:"):
		return ClassWorking
	default:
		return ClassUser
	}
}
