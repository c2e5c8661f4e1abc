package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitName(t *testing.T) {
	assert.Equal(t, "haio-alice-photos.service", unitName("alice", "photos"))
}

func TestTaskName(t *testing.T) {
	assert.Equal(t, "HaioAutoMount_alice_photos", taskName("alice", "photos"))
}

func TestIsAgentPathStableRejectsEmpty(t *testing.T) {
	assert.False(t, isAgentPathStable(""))
}

func TestIsAgentPathStableAcceptsOrdinaryPath(t *testing.T) {
	assert.True(t, isAgentPathStable("/usr/local/bin/haio-mount-agent"))
}
