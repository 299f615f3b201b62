// Package frame holds the wire-agnostic domain types shared by the frame
// bus, command bus, recorder, session and wire codec: encoded video frames,
// codec-specific data, audio frames and stream configuration. None of these
// types know how they are serialized onto the socket; that lives in
// internal/wire.
package frame

// EncodedFrame is a single encoded video access unit produced by the
// encoder and handed to the frame bus for fan-out to every session.
type EncodedFrame struct {
	Payload    []byte
	IsKeyframe bool
	PTSUs      int64
	Epoch      uint32
}

// CodecSpecificData carries the SPS/PPS pair an H.264 decoder needs before
// it can interpret any frame of a given epoch.
type CodecSpecificData struct {
	SPS   []byte
	PPS   []byte
	Epoch uint32
}

// AudioDirection indicates which way an audio frame is travelling across
// the socket: down to the viewer, or up from the viewer (talkback).
type AudioDirection string

const (
	AudioDown AudioDirection = "down"
	AudioUp   AudioDirection = "up"
)

// AudioFormat identifies the audio payload encoding.
type AudioFormat string

const (
	AudioPCM AudioFormat = "pcm"
	AudioAAC AudioFormat = "aac"
)

// AudioFrame is a single audio packet flowing in either direction.
type AudioFrame struct {
	Dir        AudioDirection
	Format     AudioFormat
	Payload    []byte
	PTSUs      int64
	SampleRate uint32
	Channels   uint8
}

// StreamConfig is the negotiated (or requested) video stream configuration.
type StreamConfig struct {
	Width      uint32
	Height     uint32
	FPS        uint8
	BitrateBps uint32
}

// ViewerCaps is the capability envelope a viewer reports once per session,
// used by the server to arbitrate StreamConfig across concurrent sessions.
type ViewerCaps struct {
	MaxWidth      uint32
	MaxHeight     uint32
	MaxBitrateBps uint32
}

// StreamStateCode mirrors the server-authoritative STREAM_STATE codes sent
// to viewers.
type StreamStateCode uint8

const (
	StreamStateActive        StreamStateCode = 1
	StreamStateReconfiguring StreamStateCode = 2
	StreamStatePaused        StreamStateCode = 3
	StreamStateStopped       StreamStateCode = 4
)

