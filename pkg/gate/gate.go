// Package gate decides whether the restore or save phase should run at all.
package gate

// Trigger events that are tied to a branch or tag ref.
const (
	EventPush        = "push"
	EventPullRequest = "pull_request"
)

// Reason explains a gate decision.
type Reason int

const (
	// ReasonRun means the phase should run.
	ReasonRun Reason = iota
	// ReasonUnavailable means the caching feature is not available.
	ReasonUnavailable
	// ReasonInvalidEvent means the trigger event is not tied to a stable ref.
	ReasonInvalidEvent
	// ReasonSkipped means the phase was explicitly skipped.
	ReasonSkipped
)

func (r Reason) String() string {
	switch r {
	case ReasonRun:
		return "run"
	case ReasonUnavailable:
		return "unavailable"
	case ReasonInvalidEvent:
		return "invalid-event"
	case ReasonSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Eligibility is what the host environment tells us about this phase.
type Eligibility struct {
	FeatureAvailable bool
	EventName        string
	Skip             bool
}

// Check returns ReasonRun when the phase should run, otherwise the first
// reason it should not. Availability is checked before the event, and the
// event before the skip flag.
func Check(e Eligibility) Reason {
	if !e.FeatureAvailable {
		return ReasonUnavailable
	}
	if !IsValidEvent(e.EventName) {
		return ReasonInvalidEvent
	}
	if e.Skip {
		return ReasonSkipped
	}
	return ReasonRun
}

// ShouldRun reports whether the phase should run.
func ShouldRun(featureAvailable bool, triggerEvent string, explicitSkip bool) bool {
	return Check(Eligibility{
		FeatureAvailable: featureAvailable,
		EventName:        triggerEvent,
		Skip:             explicitSkip,
	}) == ReasonRun
}

// IsValidEvent reports whether event is one of the ref-tied trigger kinds.
func IsValidEvent(event string) bool {
	return event == EventPush || event == EventPullRequest
}

// IsExactMatch reports whether matchedKey is present and equal to searchKey.
// An empty matchedKey means no match.
func IsExactMatch(searchKey, matchedKey string) bool {
	return matchedKey != "" && matchedKey == searchKey
}
