// Package testutil holds helpers shared by tests.
package testutil

import (
	"os"
	"testing"
)

// RequireHost skips the test unless PATHPROBE_HOST_TEST is set. Tests that
// need real interfaces, raw sockets or root use it.
func RequireHost(t *testing.T) {
	t.Helper()
	if os.Getenv("PATHPROBE_HOST_TEST") == "" {
		t.Skip("Skipping test: requires PATHPROBE_HOST_TEST environment")
	}
}
