//go:build !windows

package mountpoint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haio/mountctl/internal/config"
)

func TestForReturnsPathUnderHome(t *testing.T) {
	cfg := config.Default()

	mp, err := For(cfg, "alice", "photos")

	assert.NoError(t, err)
	assert.True(t, strings.HasSuffix(mp, "haio-alice-photos"))
}
