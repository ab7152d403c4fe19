package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKnownPermission(t *testing.T) {
	for _, name := range AllPermissions() {
		assert.True(t, KnownPermission(name), name)
	}
	assert.False(t, KnownPermission("canDoAnything"))
	assert.False(t, KnownPermission("canviewdata"))
	assert.False(t, KnownPermission(""))
}
