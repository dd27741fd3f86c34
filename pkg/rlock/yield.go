package rlock

import "runtime"

// procYield is the Go analogue of the source's spin-pause: yielding the
// processor to another goroutine without sleeping a fixed duration.
func procYield() { runtime.Gosched() }
