package negotiation

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/P2PCall/internal/core"
	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// fakeConn records what the session does to the connection.
type fakeConn struct {
	mu sync.Mutex

	name       string
	local      *domain.SessionDescription
	remote     *domain.SessionDescription
	remoteSets int
	candidates []domain.Candidate
	failRemote error

	onICE func(*domain.Candidate)
}

var _ core.MediaConnection = (*fakeConn)(nil)

func newFakeConn(name string) *fakeConn { return &fakeConn{name: name} }

func (f *fakeConn) Start(context.Context) error { return nil }
func (f *fakeConn) Close()                      {}
func (f *fakeConn) IsClosed() bool              { return false }

func (f *fakeConn) CreateOffer(context.Context) (domain.SessionDescription, error) {
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer from " + f.name}, nil
}

func (f *fakeConn) CreateAnswer(context.Context) (domain.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return domain.SessionDescription{}, errors.New("no remote offer")
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer from " + f.name}, nil
}

func (f *fakeConn) SetLocalDescription(_ context.Context, d domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.local != nil {
		return errors.New("local description already set")
	}
	f.local = &d
	return nil
}

func (f *fakeConn) SetRemoteDescription(_ context.Context, d domain.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemote != nil {
		return f.failRemote
	}
	f.remoteSets++
	if f.remote != nil {
		return errors.New("remote description already set")
	}
	f.remote = &d
	return nil
}

func (f *fakeConn) AddICECandidate(c domain.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		return errors.New("remote description not set")
	}
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(*domain.Candidate)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onICE = fn
}

func (f *fakeConn) OnTrack(func(context.Context, core.RemoteTrack)) {}
func (f *fakeConn) SetLocalTracks([]webrtc.TrackLocal) error      { return nil }
func (f *fakeConn) OnClosed(func())                               {}

// gather simulates the transport discovering a local candidate.
func (f *fakeConn) gather(c *domain.Candidate) {
	f.mu.Lock()
	fn := f.onICE
	f.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (f *fakeConn) snapshot() (local, remote *domain.SessionDescription, remoteSets int, cands []domain.Candidate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local, f.remote, f.remoteSets, append([]domain.Candidate(nil), f.candidates...)
}

func candidate(n string) domain.Candidate {
	mid := "0"
	idx := uint16(0)
	return domain.Candidate{
		Candidate:     "candidate:" + n + " 1 udp 2130706431 192.0.2.1 5000 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}
}
