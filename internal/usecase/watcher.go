package usecase

import (
	"sync"

	"camswitch/internal/ports"
)

// trackWatcher waits on every track of one handle and reports the first end.
type trackWatcher struct {
	stop     chan struct{}
	stopOnce sync.Once
	fireOnce sync.Once
	wg       sync.WaitGroup
}

func watchTracks(tracks []ports.CaptureTrack, onEnded func(trackID string)) *trackWatcher {
	w := &trackWatcher{stop: make(chan struct{})}
	w.wg.Add(len(tracks))
	for _, track := range tracks {
		go w.watch(track, onEnded)
	}
	return w
}

func (w *trackWatcher) watch(track ports.CaptureTrack, onEnded func(trackID string)) {
	defer w.wg.Done()

	select {
	case <-w.stop:
		return
	case <-track.Ended():
	}

	// Both channels may be ready at once; a cancelled watcher never reports.
	select {
	case <-w.stop:
		return
	default:
	}
	w.fireOnce.Do(func() { onEnded(track.ID()) })
}

// cancel unsubscribes without waiting. Safe from inside onEnded.
func (w *trackWatcher) cancel() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// detach unsubscribes and waits for any in-flight notification to finish.
// Callers must not hold locks that onEnded takes.
func (w *trackWatcher) detach() {
	w.cancel()
	w.wg.Wait()
}
