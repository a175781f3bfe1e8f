package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldVersion, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldVersion, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "1.2.3", "abc123", "2026-01-02T03:04:05Z"
	assert.Equal(t, "1.2.3 (commit abc123, built 2026-01-02T03:04:05Z)", String())
}
