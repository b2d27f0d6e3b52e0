// Package testutil provides small test-only helpers shared across the
// module's package tests, grounded on the teacher's common/testutil.
package testutil

import (
	"os"
	"testing"
)

// TempDir creates a temporary directory for a test's data and WAL files,
// removed automatically on cleanup.
func TempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "numstore-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}
