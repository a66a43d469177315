package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// Sink consumes RTP packets of one remote track.
type Sink interface {
	WriteRTP(pkt *rtp.Packet) error
}

// OutSink is a single registered consumer of a remote track.
type OutSink struct {
	Sink  Sink
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func NewOutSink(s Sink) *OutSink {
	return &OutSink{Sink: s}
}

func (o *OutSink) GetState() SinkState {
	return SinkState(o.state.Load())
}

func (o *OutSink) MarkOk() {
	o.state.Store(int32(SinkStateOk))
}

func (o *OutSink) MarkMuted() {
	o.state.Store(int32(SinkStateMuted))
}

func (o *OutSink) MarkDelete() {
	o.state.Store(int32(SinkStateDelete))
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pkt *rtp.Packet) error

func (f SinkFunc) WriteRTP(pkt *rtp.Packet) error { return f(pkt) }
