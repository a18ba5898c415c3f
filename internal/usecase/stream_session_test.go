package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

func TestStreamSessionAcquireDoesNotReleasePrevious(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("A", "B")
	session := NewStreamSession(platform, nil)

	first, err := session.Acquire(context.Background(), "A")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	second, err := session.Acquire(context.Background(), "B")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if first.Released() || second.Released() {
		t.Fatalf("acquire must not release anything")
	}
	if first.ID() == second.ID() {
		t.Fatalf("expected distinct handle ids")
	}

	session.Release(first)
	session.Release(second)
	if platform.liveCount() != 0 {
		t.Fatalf("expected all streams released")
	}
}

func TestStreamSessionReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("A")
	session := NewStreamSession(platform, nil)

	session.Release(nil)

	handle, err := session.Acquire(context.Background(), "A")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	session.Release(handle)
	session.Release(handle)

	if stops := platform.stream(0).tracks[0].stopCalls(); stops != 1 {
		t.Fatalf("expected a single stop, got %d", stops)
	}
	if ids := handle.TrackIDs(); len(ids) != 1 {
		t.Fatalf("unexpected track ids: %v", ids)
	}
}

func TestStreamSessionAcquireErrorClassification(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("A", "B", "C")
	platform.acquireErrs["A"] = domain.ErrDeviceUnavailable
	platform.acquireErrs["B"] = context.DeadlineExceeded
	platform.acquireErrs["C"] = domain.ErrCaptureDenied
	session := NewStreamSession(platform, nil)

	cases := map[string]error{
		"A": domain.ErrDeviceUnavailable,
		"B": domain.ErrCaptureDenied,
		"C": domain.ErrCaptureDenied,
	}
	for id, want := range cases {
		if _, err := session.Acquire(context.Background(), id); !errors.Is(err, want) {
			t.Fatalf("device %s: expected %v, got %v", id, want, err)
		}
	}
}

func TestStreamSessionSwitchToNextWhileIdle(t *testing.T) {
	t.Parallel()

	session := NewStreamSession(newFakePlatform("A", "B"), nil)
	catalog := []domain.DeviceDescriptor{{ID: "A"}, {ID: "B"}}

	handle, err := session.SwitchToNext(context.Background(), catalog)
	if handle != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", handle, err)
	}
}

func TestStreamSessionSwitchFallsBackToStoredIndex(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("A", "B", "C")
	session := NewStreamSession(platform, nil)
	catalog := []domain.DeviceDescriptor{{ID: "A"}, {ID: "B"}, {ID: "C"}}

	if _, _, err := session.Start(context.Background(), catalog, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// B vanished; cycling continues from its old position.
	handle, err := session.SwitchToNext(context.Background(), []domain.DeviceDescriptor{{ID: "A"}, {ID: "X"}, {ID: "C"}})
	if err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if handle.Device().ID != "C" {
		t.Fatalf("expected C, got %s", handle.Device().ID)
	}
}

func TestStreamSessionEndedHandlerNotCalledForStaleHandle(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform("A", "B")
	session := NewStreamSession(platform, nil)
	calls := make(chan string, 4)
	session.onEnded = func(h *StreamHandle, _ string) { calls <- h.Device().ID }
	catalog := []domain.DeviceDescriptor{{ID: "A"}, {ID: "B"}}

	if _, _, err := session.Start(context.Background(), catalog, 0); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := session.SwitchToNext(context.Background(), catalog); err != nil {
		t.Fatalf("switch failed: %v", err)
	}

	platform.stream(0).tracks[0].end()
	platform.stream(1).tracks[0].end()

	select {
	case id := <-calls:
		if id != "B" {
			t.Fatalf("expected only B to be reported, got %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected ended notification for B")
	}
	select {
	case id := <-calls:
		t.Fatalf("unexpected second notification for %s", id)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatchTracksDetachSuppressesNotification(t *testing.T) {
	t.Parallel()

	track := &fakeTrack{id: "t", ended: make(chan struct{})}
	fired := make(chan string, 1)
	w := watchTracks([]ports.CaptureTrack{track}, func(id string) { fired <- id })

	w.detach()
	track.end()

	select {
	case id := <-fired:
		t.Fatalf("detached watcher fired for %s", id)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatchTracksAlreadyEndedFiresOnce(t *testing.T) {
	t.Parallel()

	first := &fakeTrack{id: "one", ended: make(chan struct{})}
	second := &fakeTrack{id: "two", ended: make(chan struct{})}
	first.end()
	second.end()

	fired := make(chan string, 2)
	w := watchTracks([]ports.CaptureTrack{first, second}, func(id string) { fired <- id })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a notification for tracks that had already ended")
	}
	w.detach()

	if len(fired) != 0 {
		t.Fatalf("expected exactly one notification, got %d extra", len(fired))
	}
}
