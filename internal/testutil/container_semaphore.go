// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"strconv"
	"sync"
)

// ParallelEnv overrides the number of sandbox containers tests may drive at once.
const ParallelEnv = "LURE_TEST_CONTAINER_PARALLEL"

// ContainerSemaphore bounds concurrent container operations across the test
// binary. Acquire a slot by sending, release by receiving:
//
//	sem := testutil.ContainerSemaphore()
//	sem <- struct{}{}
//	defer func() { <-sem }()
var ContainerSemaphore = sync.OnceValue(func() chan struct{} {
	return make(chan struct{}, containerParallelism())
})

// containerParallelism reads ParallelEnv, defaulting to min(GOMAXPROCS, 2).
func containerParallelism() int {
	if v := os.Getenv(ParallelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return min(runtime.GOMAXPROCS(0), 2)
}
