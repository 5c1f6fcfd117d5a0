package task

import "sync"

// watch is a single-producer, multi-consumer broadcast primitive used
// for blocking result retrieval. Go has no standard equivalent of
// tokio::sync::watch, and no third-party watch-channel library surfaced
// among this module's dependencies, so this one primitive is built
// directly on sync.Mutex and a closed-channel broadcast idiom.
type watch struct {
	mu    sync.Mutex
	value ResultState
	ch    chan struct{}
}

func newWatch(initial ResultState) *watch {
	return &watch{value: initial, ch: make(chan struct{})}
}

// publish stores value and wakes every current subscriber. Callers must
// hold whatever external lock guards the owning task entry so that the
// publish happens before that lock is released, satisfying the "notify
// before releasing the write lock" invariant.
func (w *watch) publish(value ResultState) {
	w.mu.Lock()
	w.value = value
	closing := w.ch
	w.ch = make(chan struct{})
	w.mu.Unlock()
	close(closing)
}

// snapshot returns the current value and a channel that closes on the
// next publish.
func (w *watch) snapshot() (ResultState, <-chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value, w.ch
}
