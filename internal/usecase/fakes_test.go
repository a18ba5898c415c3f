package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

type fakePlatform struct {
	mu sync.Mutex

	devices      []ports.RawDevice
	enumErr      error
	acquireErrs  map[string]error
	tracksPerDev int

	// endedOnAcquire hands out streams whose tracks have already ended.
	endedOnAcquire map[string]bool

	enumCalls    int
	acquireCalls []string
	streams      []*fakeStream
	live         int
	maxLive      int

	gate    chan struct{}
	entered chan struct{}
}

func newFakePlatform(ids ...string) *fakePlatform {
	p := &fakePlatform{acquireErrs: map[string]error{}, tracksPerDev: 1}
	p.setDevices(ids...)
	return p
}

func (p *fakePlatform) setDevices(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = p.devices[:0]
	for _, id := range ids {
		p.devices = append(p.devices, ports.RawDevice{ID: id, Label: "Camera " + id, Kind: domain.DeviceKindVideoInput})
	}
}

func (p *fakePlatform) EnumerateDevices(_ context.Context) ([]ports.RawDevice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enumCalls++
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	out := make([]ports.RawDevice, len(p.devices))
	copy(out, p.devices)
	return out, nil
}

func (p *fakePlatform) Acquire(_ context.Context, deviceID string) (ports.CaptureStream, error) {
	if p.gate != nil {
		if p.entered != nil {
			p.entered <- struct{}{}
		}
		<-p.gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.acquireCalls = append(p.acquireCalls, deviceID)
	if err := p.acquireErrs[deviceID]; err != nil {
		return nil, err
	}

	p.live++
	if p.live > p.maxLive {
		p.maxLive = p.live
	}
	stream := &fakeStream{platform: p, deviceID: deviceID}
	for i := 0; i < p.tracksPerDev; i++ {
		stream.tracks = append(stream.tracks, &fakeTrack{
			id:     fmt.Sprintf("%s-track-%d-%d", deviceID, len(p.streams), i),
			stream: stream,
			ended:  make(chan struct{}),
		})
	}
	if p.endedOnAcquire[deviceID] {
		for _, track := range stream.tracks {
			track.end()
		}
	}
	p.streams = append(p.streams, stream)
	return stream, nil
}

func (p *fakePlatform) liveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *fakePlatform) maxLiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLive
}

func (p *fakePlatform) stream(i int) *fakeStream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.streams[i]
}

func (p *fakePlatform) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.acquireCalls))
	copy(out, p.acquireCalls)
	return out
}

type fakeStream struct {
	platform *fakePlatform
	deviceID string
	tracks   []*fakeTrack

	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) Tracks() []ports.CaptureTrack {
	out := make([]ports.CaptureTrack, 0, len(s.tracks))
	for _, track := range s.tracks {
		out = append(out, track)
	}
	return out
}

func (s *fakeStream) Native() any { return s.deviceID }

func (s *fakeStream) trackStopped() {
	s.mu.Lock()
	s.stopped++
	done := s.stopped == len(s.tracks)
	s.mu.Unlock()

	if done {
		s.platform.mu.Lock()
		s.platform.live--
		s.platform.mu.Unlock()
	}
}

type fakeTrack struct {
	id     string
	stream *fakeStream
	ended  chan struct{}
	// stopErr is returned by Stop; set before the track is released.
	stopErr error

	endOnce  sync.Once
	stopOnce sync.Once
	mu       sync.Mutex
	stops    int
}

func (t *fakeTrack) ID() string { return t.id }

func (t *fakeTrack) Ended() <-chan struct{} { return t.ended }

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
	t.stopOnce.Do(t.stream.trackStopped)
	t.end()
	return t.stopErr
}

// end simulates an out-of-band termination such as an unplugged device.
func (t *fakeTrack) end() {
	t.endOnce.Do(func() { close(t.ended) })
}

func (t *fakeTrack) stopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeEventSink struct {
	mu sync.Mutex

	states []stateEvent
	errors []errEvent
}

type stateEvent struct {
	snapshot domain.Snapshot
	reason   domain.SessionStateReason
}

type errEvent struct {
	code   domain.ErrorCode
	detail string
}

func (f *fakeEventSink) SessionStateChanged(snapshot domain.Snapshot, reason domain.SessionStateReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, stateEvent{snapshot: snapshot, reason: reason})
}

func (f *fakeEventSink) SessionError(code domain.ErrorCode, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, errEvent{code: code, detail: detail})
}

func (f *fakeEventSink) snapshotStates() []stateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]stateEvent, len(f.states))
	copy(out, f.states)
	return out
}

func (f *fakeEventSink) snapshotErrors() []errEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]errEvent, len(f.errors))
	copy(out, f.errors)
	return out
}

func (f *fakeEventSink) countReason(reason domain.SessionStateReason) int {
	n := 0
	for _, state := range f.snapshotStates() {
		if state.reason == reason {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
