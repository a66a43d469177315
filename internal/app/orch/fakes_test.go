package orch

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type fakeConn struct {
	mu sync.Mutex

	name     string
	local    *domain.SessionDescription
	remote   *domain.SessionDescription
	tracks   [][]webrtc.TrackLocal
	closed   bool
	onTrack  func(context.Context, core.RemoteTrack)
	onClosed func()
}

var _ core.MediaConnection = (*fakeConn)(nil)

func (f *fakeConn) Start(context.Context) error { return nil }

func (f *fakeConn) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	fn := f.onClosed
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeConn) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) CreateOffer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 " + f.name}, nil
}

func (f *fakeConn) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 " + f.name}, nil
}

func (f *fakeConn) SetLocalDescription(_ context.Context, d domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = &d
	return nil
}

func (f *fakeConn) SetRemoteDescription(_ context.Context, d domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote != nil {
		return errors.New("remote description already set")
	}
	f.remote = &d
	return nil
}

func (f *fakeConn) AddICECandidate(domain.Candidate) error { return nil }
func (f *fakeConn) OnICECandidate(func(*domain.Candidate))  {}

func (f *fakeConn) OnTrack(fn func(context.Context, core.RemoteTrack)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *fakeConn) SetLocalTracks(t []webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, t)
	return nil
}

func (f *fakeConn) OnClosed(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClosed = fn
}

func (f *fakeConn) emitTrack(t core.RemoteTrack) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	if fn != nil {
		fn(context.Background(), t)
	}
}

func (f *fakeConn) trackSets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracks)
}

type fakeSurface struct {
	mu       sync.Mutex
	created  []domain.RoomID
	notFound []domain.RoomID
	tracks   []string
}

func (s *fakeSurface) RoomCreated(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, id)
}

func (s *fakeSurface) RoomNotFound(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notFound = append(s.notFound, id)
}

func (s *fakeSurface) RemoteTrackReceived(t core.RemoteTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t.ID())
}

type fakeSource struct {
	mu      sync.Mutex
	err     error
	reloads int
}

func (s *fakeSource) Tracks(context.Context) ([]webrtc.TrackLocal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	t, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "test")
	if err != nil {
		return nil, err
	}
	return []webrtc.TrackLocal{t}, nil
}

func (s *fakeSource) Reload(ctx context.Context) ([]webrtc.TrackLocal, error) {
	s.mu.Lock()
	s.reloads++
	s.mu.Unlock()
	return s.Tracks(ctx)
}

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string                { return t.id }
func (t fakeTrack) StreamID() string          { return "remote" }
func (t fakeTrack) Kind() webrtc.RTPCodecType { return webrtc.RTPCodecTypeAudio }
func (t fakeTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}}
}
func (t fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}
