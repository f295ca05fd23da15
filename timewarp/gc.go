package timewarp

import "runtime"

// requestGCHint nudges the Go runtime to consider a collection after fossil
// collection frees a batch of history/past-log entries, the way the
// reference runtime's metrics comment describes "a release-pool or arena
// reset" hook for production allocators. This is a hint, not a guarantee:
// the runtime is free to ignore it.
func requestGCHint() {
	runtime.GC()
}
