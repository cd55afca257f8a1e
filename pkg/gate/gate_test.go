package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name string
		in   Eligibility
		want Reason
	}{
		{
			name: "push runs",
			in:   Eligibility{FeatureAvailable: true, EventName: EventPush},
			want: ReasonRun,
		},
		{
			name: "pull request runs",
			in:   Eligibility{FeatureAvailable: true, EventName: EventPullRequest},
			want: ReasonRun,
		},
		{
			name: "unavailable wins over everything",
			in:   Eligibility{FeatureAvailable: false, EventName: "schedule", Skip: true},
			want: ReasonUnavailable,
		},
		{
			name: "schedule is not ref tied",
			in:   Eligibility{FeatureAvailable: true, EventName: "schedule"},
			want: ReasonInvalidEvent,
		},
		{
			name: "empty event is invalid",
			in:   Eligibility{FeatureAvailable: true},
			want: ReasonInvalidEvent,
		},
		{
			name: "invalid event reported before skip",
			in:   Eligibility{FeatureAvailable: true, EventName: "workflow_dispatch", Skip: true},
			want: ReasonInvalidEvent,
		},
		{
			name: "skip",
			in:   Eligibility{FeatureAvailable: true, EventName: EventPush, Skip: true},
			want: ReasonSkipped,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.in)
			assert.Equal(t, tt.want, got, "got %s", got)
			assert.Equal(t, tt.want == ReasonRun, ShouldRun(tt.in.FeatureAvailable, tt.in.EventName, tt.in.Skip))
		})
	}
}

func TestIsExactMatch(t *testing.T) {
	assert.True(t, IsExactMatch("build-v1-flk", "build-v1-flk"))
	assert.False(t, IsExactMatch("build-v1-flk", ""))
	assert.False(t, IsExactMatch("build-v1-flk", "build-v1-flk-abc"))
	assert.False(t, IsExactMatch("build-v1-flk-abc", "build-v1-flk"))
	assert.False(t, IsExactMatch("", ""))
}

func TestReasonString(t *testing.T) {
	assert.Equal(t, "invalid-event", ReasonInvalidEvent.String())
	assert.Equal(t, "unknown", Reason(42).String())
}
