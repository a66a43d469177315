package rtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// Settings is the subset of config that shapes the transport.
type Settings struct {
	ICEServers           []string
	ICECandidatePoolSize uint8
}

func DefaultSettings() Settings {
	return Settings{
		ICEServers: []string{
			"stun:stun1.l.google.com:19302",
			"stun:stun2.l.google.com:19302",
		},
		ICECandidatePoolSize: 10,
	}
}

func (s Settings) Configuration() webrtc.Configuration {
	cfg := webrtc.Configuration{ICECandidatePoolSize: s.ICECandidatePoolSize}
	if len(s.ICEServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: s.ICEServers}}
	}
	return cfg
}

// NewAPI builds a pion API with default codecs and interceptors whose
// internal logs go through zerolog.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	se.LoggerFactory = NewLoggerFactory()

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}
