// Package utils holds small operational helpers shared by the binaries.
package utils

import (
	"runtime"
	"time"

	"github.com/apex/log"
)

// MonitorResources logs goroutine and heap usage periodically, useful when a
// long batch sweep is suspected of leaking.
func MonitorResources(interval time.Duration) {
	go func() {
		var m runtime.MemStats
		for {
			runtime.ReadMemStats(&m)
			log.Debugf("resources: goroutines=%d heap=%.2fMB objects=%d",
				runtime.NumGoroutine(), float64(m.HeapAlloc)/(1<<20), m.HeapObjects)
			time.Sleep(interval)
		}
	}()
}
