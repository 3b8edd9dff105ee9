package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	v, sha, built := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = v, sha, built })

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-10-01T00:00:00Z"
	assert.Equal(t, "abduction 1.2.0 (git abc1234, built 2026-10-01T00:00:00Z)", String("abduction"))
}
