package rtc

import (
	"fmt"

	"github.com/dkeye/P2PCall/internal/domain"
	"github.com/pion/webrtc/v4"
)

func DescriptionFromPion(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func DescriptionToPion(d domain.SessionDescription) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Type {
	case domain.SDPTypeOffer:
		t = webrtc.SDPTypeOffer
	case domain.SDPTypeAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("%w: unsupported sdp type %q", domain.ErrMalformedDescription, d.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: d.SDP}, nil
}

func CandidateFromPion(init webrtc.ICECandidateInit) domain.Candidate {
	return domain.Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

func CandidateToPion(c domain.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
