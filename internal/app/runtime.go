package app

import (
	"os"
	"strconv"
	"sync"
)

var (
	testModeOnce sync.Once
	testMode     bool
)

// InTestMode reports whether MERIDIAN_TEST_MODE asked binaries to skip
// runtime startup.
func InTestMode() bool {
	testModeOnce.Do(func() {
		v, err := strconv.ParseBool(os.Getenv("MERIDIAN_TEST_MODE"))
		testMode = err == nil && v
	})
	return testMode
}

// RefreshTestMode re-reads the environment. Test helper.
func RefreshTestMode() {
	testModeOnce = sync.Once{}
}
