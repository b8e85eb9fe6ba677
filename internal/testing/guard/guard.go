// Package guard forces test mode before any imported package reads the flag.
// Import it for side effects from test files that pull in cmd wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FLEETLEASE_TEST_MODE") == "" {
			_ = os.Setenv("FLEETLEASE_TEST_MODE", "1")
		}
	})
}
