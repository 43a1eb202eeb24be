//go:build linux

package service

import (
	"strings"
	"testing"
)

func TestRenderUnit(t *testing.T) {
	unit := renderUnit("/opt/zowe/bin/zowe")

	if !strings.Contains(unit, "ExecStart=/opt/zowe/bin/zowe --daemon\n") {
		t.Errorf("unit should launch daemon mode:\n%s", unit)
	}
	if !strings.Contains(unit, "KillSignal=SIGTERM") {
		t.Error("unit should stop the daemon with SIGTERM")
	}
}
