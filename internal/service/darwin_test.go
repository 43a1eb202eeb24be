//go:build darwin

package service

import (
	"strings"
	"testing"
)

func TestRenderPlist(t *testing.T) {
	plist := renderPlist("/Applications/Zowe & Co/zowe", "/tmp/daemon.log")

	if !strings.Contains(plist, "<string>/Applications/Zowe &amp; Co/zowe</string>") {
		t.Errorf("executable should be escaped:\n%s", plist)
	}
	if !strings.Contains(plist, "<string>--daemon</string>") {
		t.Error("plist should launch daemon mode")
	}
	if !strings.Contains(plist, "<string>"+Label+"</string>") {
		t.Error("plist should carry the label")
	}
}
