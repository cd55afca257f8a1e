package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastKey(t *testing.T) {
	tests := []struct {
		name    string
		primary string
		hash    string
		want    string
	}{
		{name: "unqualified", primary: "build-v1", want: "build-v1-flk"},
		{name: "qualified", primary: "build-v1", hash: "abc123", want: "build-v1-flk-abc123"},
		{name: "empty primary", primary: "", want: "-flk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FastKey(tt.primary, tt.hash))
			// Re-deriving with the same inputs is stable.
			assert.Equal(t, FastKey(tt.primary, tt.hash), FastKey(tt.primary, tt.hash))
		})
	}
}

func TestBuildWithoutHash(t *testing.T) {
	k := Build("build-v1", nil, "")

	assert.Equal(t, "build-v1", k.Primary)
	assert.Equal(t, "build-v1-flk", k.Fast)
	assert.Equal(t, []string{"build-v1-"}, k.RestoreKeys)
	assert.Equal(t, []string{"build-v1-flk-"}, k.FastRestoreKeys)
}

func TestBuildWithHashAndPrefixes(t *testing.T) {
	prefixes := []string{"build-linux-", "build-"}
	k := Build("build-v1", prefixes, "deadbeef")

	assert.Equal(t, "build-v1-deadbeef", k.Primary)
	assert.Equal(t, "build-v1-flk-deadbeef", k.Fast)
	assert.Equal(t, []string{"build-linux-", "build-", "build-v1-"}, k.RestoreKeys)
	assert.Equal(t, []string{"build-linux-", "build-", "build-v1-flk-deadbeef-"}, k.FastRestoreKeys)
}

func TestBuildDoesNotAliasCallerSlice(t *testing.T) {
	prefixes := make([]string, 1, 4)
	prefixes[0] = "build-"

	k := Build("build-v1", prefixes, "")
	k.RestoreKeys[0] = "mutated"

	require.Equal(t, "build-", prefixes[0])
	assert.Equal(t, "build-", k.FastRestoreKeys[0])
}

func TestCandidates(t *testing.T) {
	k := Build("build-v1", []string{"build-"}, "")

	assert.Equal(t, []string{"build-v1", "build-", "build-v1-"}, k.PrimaryCandidates())
	assert.Equal(t, []string{"build-v1-flk", "build-", "build-v1-flk-"}, k.FastCandidates())
}

func TestBuildHashSeparatesBundles(t *testing.T) {
	a := Build("build-v1", nil, "h1")
	b := Build("build-v1", nil, "h2")

	assert.NotEqual(t, a.Primary, b.Primary)
	assert.NotEqual(t, a.Fast, b.Fast)
	// Either bundle is still reachable through the trailing fallback.
	assert.True(t, strings.HasPrefix(a.Primary, b.RestoreKeys[len(b.RestoreKeys)-1]))
	assert.Equal(t, []string{"build-v1-h2", "build-v1-"}, b.PrimaryCandidates())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("build-linux-v1"))
	assert.NoError(t, Validate(strings.Repeat("k", MaxKeyLength)))
	assert.ErrorIs(t, Validate(strings.Repeat("k", MaxKeyLength+1)), ErrInvalidKey)
	assert.ErrorIs(t, Validate("a,b"), ErrInvalidKey)
	assert.ErrorIs(t, Validate("a\nb"), ErrInvalidKey)
}
