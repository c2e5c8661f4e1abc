//go:build !windows

package persistence

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestUnitContentsIncludesRequiredDirectives(t *testing.T) {
	b := &systemdBackend{logger: zerolog.Nop()}
	e := Entry{Username: "alice", Container: "photos", MountPoint: "/home/alice/haio-alice-photos"}

	contents := b.unitContents(e, "/usr/local/bin/haio-mount-agent")

	assert.Contains(t, contents, "After=network-online.target")
	assert.Contains(t, contents, "Wants=network-online.target")
	assert.Contains(t, contents, "Type=simple")
	assert.Contains(t, contents, "Restart=on-failure")
	assert.Contains(t, contents, "RestartSec=10")
	assert.Contains(t, contents, "StartLimitIntervalSec=60")
	assert.Contains(t, contents, "StartLimitBurst=3")
	assert.Contains(t, contents, "/usr/local/bin/haio-mount-agent mount")
	assert.True(t, strings.Contains(contents, "ExecStop="))
}

func TestManualCleanupCommandsNameTheUnit(t *testing.T) {
	e := Entry{Username: "alice", Container: "photos"}
	cmds := ManualCleanupCommands(e)
	require := assert.New(t)
	require.NotEmpty(cmds)
	found := false
	for _, c := range cmds {
		if strings.Contains(c, "haio-alice-photos.service") {
			found = true
		}
	}
	require.True(found)
}
