//go:build windows

package daemon

import (
	"strings"
	"testing"
)

func TestOwnerOnlySDDL(t *testing.T) {
	sddl, err := ownerOnlySDDL()
	if err != nil {
		t.Fatalf("ownerOnlySDDL: %v", err)
	}
	if !strings.HasPrefix(sddl, "D:P(A;;GA;;;S-1-") || strings.Count(sddl, "(A;") != 1 {
		t.Errorf("expected a single ACE for the user SID, got %q", sddl)
	}
}
