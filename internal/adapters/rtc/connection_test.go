package rtc

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptionConversion(t *testing.T) {
	d := domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0"}
	p, err := DescriptionToPion(d)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, p.Type)
	assert.Equal(t, d, DescriptionFromPion(p))

	_, err = DescriptionToPion(domain.SessionDescription{Type: "pranswer", SDP: "v=0"})
	assert.ErrorIs(t, err, domain.ErrMalformedDescription)
}

func TestCandidateConversion(t *testing.T) {
	mid, idx, ufrag := "0", uint16(1), "frag"
	c := domain.Candidate{Candidate: "candidate:1 1 udp 1 192.0.2.1 9 typ host", SDPMid: &mid, SDPMLineIndex: &idx, UsernameFragment: &ufrag}
	assert.Equal(t, c, CandidateFromPion(CandidateToPion(c)))
}

func TestSettingsConfiguration(t *testing.T) {
	cfg := DefaultSettings().Configuration()
	require.Len(t, cfg.ICEServers, 1)
	assert.Len(t, cfg.ICEServers[0].URLs, 2)
	assert.Equal(t, uint8(10), cfg.ICECandidatePoolSize)

	assert.Empty(t, Settings{}.Configuration().ICEServers)
}

func newTestConn(t *testing.T, name string) *WebRTCConnection {
	t.Helper()
	api, err := NewAPI()
	require.NoError(t, err)
	c, err := NewWebRTCConnection(api, webrtc.Configuration{}, name)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Close)
	return c
}

func TestOfferAnswerLoopback(t *testing.T) {
	ctx := context.Background()
	caller := newTestConn(t, "caller")
	callee := newTestConn(t, "callee")

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "test")
	require.NoError(t, err)
	require.NoError(t, caller.SetLocalTracks([]webrtc.TrackLocal{track}))

	gathered := make(chan domain.Candidate, 16)
	caller.OnICECandidate(func(c *domain.Candidate) {
		if c == nil {
			return
		}
		select {
		case gathered <- *c:
		default:
		}
	})

	offer, err := caller.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeOffer, offer.Type)
	require.NoError(t, caller.SetLocalDescription(ctx, offer))
	assert.Equal(t, webrtc.SignalingStateHaveLocalOffer, caller.SignalingState())

	require.NoError(t, callee.SetRemoteDescription(ctx, offer))
	answer, err := callee.CreateAnswer(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeAnswer, answer.Type)
	require.NoError(t, callee.SetLocalDescription(ctx, answer))
	require.NoError(t, caller.SetRemoteDescription(ctx, answer))

	assert.Equal(t, webrtc.SignalingStateStable, caller.SignalingState())
	assert.Equal(t, webrtc.SignalingStateStable, callee.SignalingState())

	select {
	case c := <-gathered:
		require.NoError(t, c.Validate())
		assert.NoError(t, callee.AddICECandidate(c))
	case <-time.After(5 * time.Second):
		t.Log("no local candidate gathered, skipping candidate application")
	}
}

func TestReplaceTrackOfSameKind(t *testing.T) {
	c := newTestConn(t, "replace")
	mk := func(id string) webrtc.TrackLocal {
		tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "test")
		require.NoError(t, err)
		return tr
	}
	require.NoError(t, c.SetLocalTracks([]webrtc.TrackLocal{mk("a1")}))
	require.NoError(t, c.SetLocalTracks([]webrtc.TrackLocal{mk("a2")}))
	assert.Len(t, c.senders, 1)
}

func TestNewKindAfterOfferIsSkipped(t *testing.T) {
	ctx := context.Background()
	c := newTestConn(t, "late-kind")
	audio := func(id string) webrtc.TrackLocal {
		tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, id, "test")
		require.NoError(t, err)
		return tr
	}
	video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "v1", "test")
	require.NoError(t, err)

	require.NoError(t, c.SetLocalTracks([]webrtc.TrackLocal{audio("a1")}))
	offer, err := c.CreateOffer(ctx)
	require.NoError(t, err)
	require.NoError(t, c.SetLocalDescription(ctx, offer))

	require.NoError(t, c.SetLocalTracks([]webrtc.TrackLocal{audio("a2"), video}))
	assert.Len(t, c.senders, 1)
	assert.Contains(t, c.senders, webrtc.RTPCodecTypeAudio)
	assert.Len(t, c.pc.GetSenders(), 1)
}

func TestClosedConnectionRejectsCalls(t *testing.T) {
	c := newTestConn(t, "closed")
	fired := make(chan struct{})
	c.OnClosed(func() { close(fired) })
	c.Close()
	c.Close()

	assert.True(t, c.IsClosed())
	_, err := c.CreateOffer(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnClosed not fired")
	}
}
