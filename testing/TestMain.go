package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/gatehouse-auth/gatehouse/internal/app"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("GATEHOUSE_TEST_MODE", "1")
		// Re-read the flag in case something consulted it before the
		// env var was set.
		app.RefreshTestMode()
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
