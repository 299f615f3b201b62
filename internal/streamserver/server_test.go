package streamserver

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/duskwatch/camstream/internal/cmdbus"
	"github.com/duskwatch/camstream/internal/collab/collabtest"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/session"
	"github.com/duskwatch/camstream/internal/wire"
)

func newTestServer(t *testing.T) (*Server, *collabtest.FakeEncoder) {
	t.Helper()
	enc := collabtest.NewFakeEncoder(1280, 720)
	rec := &collabtest.FakeRecorder{}
	profile := collabtest.FakeDeviceProfile{Ladder: []frame.StreamConfig{{Width: 320, Height: 240, FPS: 10, BitrateBps: 200_000}}}
	clock := collabtest.NewFakeClock(time.Unix(0, 0))

	s := New(Config{ListenAddr: "127.0.0.1:0", Password: "123456"}, enc, rec, profile, clock, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s, enc
}

func dialAndHandshake(t *testing.T, addr net.Addr) *wire.Codec {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	codec := wire.NewCodec(conn)

	require.NoError(t, codec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 3)))

	proto, err := codec.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "PROTO", proto.Tag)

	challenge, err := codec.ReadMessage()
	require.NoError(t, err)
	saltHex, ok := challenge.Get("salt")
	require.True(t, ok)

	hash := session.ChallengeResponse("123456", saltHex)
	require.NoError(t, codec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", hash)))

	authOK, err := codec.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "AUTH_OK", authOK.Tag)

	_, err = codec.ReadMessage() // SESSION
	require.NoError(t, err)

	return codec
}

func TestServer_HandshakeThenStreamAcceptedAndReconfiguring(t *testing.T) {
	s, _ := newTestServer(t)
	codec := dialAndHandshake(t, s.Addr())

	accepted, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "STREAM_ACCEPTED", accepted.Tag)
	epoch, _ := accepted.GetUint32("epoch")
	assert.Equal(t, uint32(1), epoch)

	state, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "STREAM_STATE", state.Tag)
	code, _ := state.GetUint32("code")
	assert.Equal(t, uint32(frame.StreamStateReconfiguring), code)
}

func TestServer_FirstKeyframeFlipsStreamStateActive(t *testing.T) {
	s, _ := newTestServer(t)
	codec := dialAndHandshake(t, s.Addr())

	_, err := codec.ReadMessage() // STREAM_ACCEPTED
	require.NoError(t, err)
	_, err = codec.ReadMessage() // STREAM_STATE reconfiguring
	require.NoError(t, err)

	s.OnFrame(frame.EncodedFrame{IsKeyframe: true, Payload: []byte{1, 2, 3}})

	active, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "STREAM_STATE", active.Tag)
	code, _ := active.GetUint32("code")
	assert.Equal(t, uint32(frame.StreamStateActive), code)

	ok, err := codec.PeekIsBinaryFrame()
	require.NoError(t, err)
	require.True(t, ok)
	bf, err := codec.ReadBinaryFrame()
	require.NoError(t, err)
	assert.True(t, bf.IsKeyframe)
	assert.Equal(t, []byte{1, 2, 3}, bf.Payload)
}

func TestServer_OnFrameFeedsActiveRecordingSink(t *testing.T) {
	enc := collabtest.NewFakeEncoder(1280, 720)
	rec := &collabtest.FakeRecorder{}
	profile := collabtest.FakeDeviceProfile{}
	clock := collabtest.NewFakeClock(time.Unix(0, 0))
	s := New(Config{ListenAddr: "127.0.0.1:0", Password: "123456"}, enc, rec, profile, clock, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.commands.Post(cmdbus.Command{Kind: cmdbus.StartRecording}))
	require.Eventually(t, func() bool { return s.recordingActive.Load() }, time.Second, time.Millisecond)

	s.OnFrame(frame.EncodedFrame{IsKeyframe: true, Payload: []byte{1, 2, 3}})
	s.OnAudioFrame(frame.AudioFrame{Dir: frame.AudioUp, Payload: []byte{4, 5}})

	require.Eventually(t, func() bool { return len(rec.RecordedVideoFrames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{1, 2, 3}, rec.RecordedVideoFrames()[0].Payload)
}

func TestServer_HandleAudioFrame_IgnoresDownstreamDirection(t *testing.T) {
	enc := collabtest.NewFakeEncoder(1280, 720)
	rec := &collabtest.FakeRecorder{}
	profile := collabtest.FakeDeviceProfile{}
	clock := collabtest.NewFakeClock(time.Unix(0, 0))
	s := New(Config{ListenAddr: "127.0.0.1:0", Password: "123456"}, enc, rec, profile, clock, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.commands.Post(cmdbus.Command{Kind: cmdbus.StartRecording}))
	require.Eventually(t, func() bool { return s.recordingActive.Load() }, time.Second, time.Millisecond)

	codec := dialAndHandshake(t, s.Addr())
	msg := wire.NewMessage("AUDIO_FRAME").
		WithString("dir", string(frame.AudioDown)).
		WithInt64("tsUs", 1).
		WithUint64("rate", 8000).
		WithUint64("ch", 1).
		WithUint64("size", 2)
	require.NoError(t, codec.WriteSizedMessage(msg, []byte{9, 9}))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.RecordedAudioFrames(), "downstream-direction AUDIO_FRAME must not be recorded")
}

func TestServer_OnAudioFrameBroadcastsAACWithADTSHeader(t *testing.T) {
	s, _ := newTestServer(t)
	codec := dialAndHandshake(t, s.Addr())
	_, err := codec.ReadMessage() // STREAM_ACCEPTED
	require.NoError(t, err)
	_, err = codec.ReadMessage() // STREAM_STATE reconfiguring
	require.NoError(t, err)

	s.OnAudioFrame(frame.AudioFrame{
		Dir: frame.AudioDown, Format: frame.AudioAAC, Payload: []byte{0xAA, 0xBB, 0xCC},
		PTSUs: 1000, SampleRate: 48000, Channels: 1,
	})

	msg, err := codec.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "AUDIO_FRAME", msg.Tag)
	dir, _ := msg.Get("dir")
	assert.Equal(t, string(frame.AudioDown), dir)
	format, _ := msg.Get("format")
	assert.Equal(t, string(frame.AudioAAC), format)
	size, _ := msg.GetUint32("size")
	assert.Equal(t, uint32(7+3), size, "size must cover the 7-byte ADTS header plus the raw AAC payload")

	payload, err := codec.ReadPayload(size)
	require.NoError(t, err)
	require.Len(t, payload, 10)
	assert.Equal(t, byte(0xFF), payload[0], "ADTS sync byte")
	assert.Equal(t, byte(0xF1), payload[1])
	profile := payload[2] >> 6
	sampleRateIdx := (payload[2] >> 2) & 0x0F
	assert.Equal(t, byte(1), profile, "profile must be LC (1)")
	assert.Equal(t, byte(3), sampleRateIdx, "48kHz must map to ADTS sample-rate index 3")
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, payload[7:])
}

func TestServer_OnAudioFramePCMSkipsADTSHeader(t *testing.T) {
	s, _ := newTestServer(t)
	codec := dialAndHandshake(t, s.Addr())
	_, err := codec.ReadMessage() // STREAM_ACCEPTED
	require.NoError(t, err)
	_, err = codec.ReadMessage() // STREAM_STATE reconfiguring
	require.NoError(t, err)

	s.OnAudioFrame(frame.AudioFrame{
		Dir: frame.AudioDown, Format: frame.AudioPCM, Payload: []byte{1, 2},
		SampleRate: 48000, Channels: 1,
	})

	msg, err := codec.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "AUDIO_FRAME", msg.Tag)
	size, _ := msg.GetUint32("size")
	assert.Equal(t, uint32(2), size, "PCM downstream frames carry no ADTS framing")
	payload, err := codec.ReadPayload(size)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, payload)
}

func TestServer_HandleAudioFrame_RecordsUpstreamPayloadThroughPooledBuffer(t *testing.T) {
	enc := collabtest.NewFakeEncoder(1280, 720)
	rec := &collabtest.FakeRecorder{}
	profile := collabtest.FakeDeviceProfile{}
	clock := collabtest.NewFakeClock(time.Unix(0, 0))
	s := New(Config{ListenAddr: "127.0.0.1:0", Password: "123456"}, enc, rec, profile, clock, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	require.NoError(t, s.commands.Post(cmdbus.Command{Kind: cmdbus.StartRecording}))
	require.Eventually(t, func() bool { return s.recordingActive.Load() }, time.Second, time.Millisecond)

	codec := dialAndHandshake(t, s.Addr())
	msg := wire.NewMessage("AUDIO_FRAME").
		WithString("dir", string(frame.AudioUp)).
		WithInt64("tsUs", 7).
		WithUint64("rate", 48000).
		WithUint64("ch", 1).
		WithUint64("size", 4)
	require.NoError(t, codec.WriteSizedMessage(msg, []byte{1, 2, 3, 4}))

	require.Eventually(t, func() bool { return len(rec.RecordedAudioFrames()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{1, 2, 3, 4}, rec.RecordedAudioFrames()[0].Payload,
		"recorded payload must survive handleAudioFrame returning its bufpool buffer")
}

func TestServer_CapsArbitratesMinimumAcrossSessions(t *testing.T) {
	// ReportedWidth/Height 0 so the fake encoder doesn't claim a fixed
	// buffer-mode resolution that would mask the cap-arbitration clamp this
	// test is checking.
	enc := collabtest.NewFakeEncoder(0, 0)
	rec := &collabtest.FakeRecorder{}
	profile := collabtest.FakeDeviceProfile{}
	clock := collabtest.NewFakeClock(time.Unix(0, 0))
	s := New(Config{ListenAddr: "127.0.0.1:0", Password: "123456"}, enc, rec, profile, clock, zap.NewNop().Sugar())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })

	codecA := dialAndHandshake(t, s.Addr())
	_, err := codecA.ReadMessage() // STREAM_ACCEPTED
	require.NoError(t, err)
	_, err = codecA.ReadMessage() // STREAM_STATE reconfiguring
	require.NoError(t, err)

	codecB := dialAndHandshake(t, s.Addr())
	_, err = codecB.ReadMessage()
	require.NoError(t, err)
	_, err = codecB.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, codecA.WriteMessage(wire.NewMessage("CAPS").
		WithUint64("maxWidth", 1920).WithUint64("maxHeight", 1080).WithUint64("maxBitrate", 4_000_000)))
	okA, err := codecA.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "CAPS_OK", okA.Tag)

	require.NoError(t, codecB.WriteMessage(wire.NewMessage("CAPS").
		WithUint64("maxWidth", 640).WithUint64("maxHeight", 480).WithUint64("maxBitrate", 1_000_000)))
	okB, err := codecB.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "CAPS_OK", okB.Tag)

	require.NoError(t, codecA.WriteMessage(wire.NewMessage("SET_STREAM").
		WithUint64("width", 1920).WithUint64("height", 1080).WithUint64("fps", 30).WithUint64("bitrate", 4_000_000)))

	accepted, err := codecA.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "STREAM_ACCEPTED", accepted.Tag)
	width, _ := accepted.GetUint32("width")
	height, _ := accepted.GetUint32("height")
	bitrate, _ := accepted.GetUint32("bitrate")
	assert.Equal(t, uint32(640), width, "reconfigure must clamp to the minimum reported maxWidth across sessions")
	assert.Equal(t, uint32(480), height)
	assert.Equal(t, uint32(1_000_000), bitrate)
}

func TestServer_CapsIgnoresMalformedLine(t *testing.T) {
	s, _ := newTestServer(t)
	codec := dialAndHandshake(t, s.Addr())
	_, err := codec.ReadMessage() // STREAM_ACCEPTED
	require.NoError(t, err)
	_, err = codec.ReadMessage() // STREAM_STATE reconfiguring
	require.NoError(t, err)

	require.NoError(t, codec.WriteMessage(wire.NewMessage("CAPS").
		WithString("maxWidth", "abc").WithUint64("maxHeight", 1080).WithUint64("maxBitrate", 2_000_000)))

	// No CAPS_OK should follow a malformed line; a subsequent PING/PONG
	// round-trip proves the connection is still alive and simply never
	// received one for the bad CAPS.
	require.NoError(t, codec.WriteMessage(wire.NewMessage("PING").WithInt64("tsMs", 1)))
	pong, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong.Tag)
}

func TestServer_RejectsBeyondCapacity(t *testing.T) {
	s, _ := newTestServer(t)

	var codecs []*wire.Codec
	for i := 0; i < MaxAuthenticatedSessions; i++ {
		c := dialAndHandshake(t, s.Addr())
		codecs = append(codecs, c)
	}
	for _, c := range codecs {
		_, err := c.ReadMessage() // STREAM_ACCEPTED, drain so the session settles
		require.NoError(t, err)
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	codec := wire.NewCodec(conn)
	require.NoError(t, codec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 2)))
	challenge, err := codec.ReadMessage()
	require.NoError(t, err)
	saltHex, _ := challenge.Get("salt")
	hash := session.ChallengeResponse("123456", saltHex)
	require.NoError(t, codec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", hash)))

	fail, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_FAIL", fail.Tag)
}
