// Package testing switches the process into test mode when imported by test binaries.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("LABDATA_TEST_MODE", "1")
		if os.Getenv("UPLOAD_DIR") == "" {
			_ = os.Setenv("UPLOAD_DIR", os.TempDir())
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
