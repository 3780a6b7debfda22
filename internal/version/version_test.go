package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Name, info["name"])
	assert.Equal(t, Version, info["version"])
	assert.Contains(t, info, "gitCommit")
	assert.Equal(t, "v"+Version, String())
}
