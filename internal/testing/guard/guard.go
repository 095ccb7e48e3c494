// Package guard forces test mode for packages that import it, so binaries
// built from them skip network side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("NEXUS_TEST_MODE") == "" {
			_ = os.Setenv("NEXUS_TEST_MODE", "1")
		}
	})
}
