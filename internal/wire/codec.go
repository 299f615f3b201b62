package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	camerrors "github.com/duskwatch/camstream/internal/errors"
)

// binaryFrameMarker is the leading byte that introduces a v3 binary video
// frame on the wire, as opposed to a printable-ASCII control line.
const binaryFrameMarker = 0x00

// binaryFrameHeaderLen is the size in bytes of the v3 binary frame header:
// epoch(4) | flags(4) | size(4), all big-endian.
const binaryFrameHeaderLen = 12

// keyframeFlag is bit 0 of the v3 binary frame header's flags word.
const keyframeFlag = 1 << 0

// Codec reads and writes control messages and frame envelopes over a single
// underlying stream. It is safe for one reader goroutine and one writer
// goroutine to use concurrently (distinct methods touch distinct buffers).
type Codec struct {
	r *bufio.Reader
	w *bufio.Writer
}

// NewCodec wraps rw with the buffered reader/writer the framing rules need.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: bufio.NewReader(rw), w: bufio.NewWriter(rw)}
}

// BinaryFrame is a decoded v3 binary video frame envelope.
type BinaryFrame struct {
	Epoch      uint32
	IsKeyframe bool
	Payload    []byte
}

// ReadMessage reads one newline-terminated control line and parses it. It
// does not interpret any trailing size=N payload; callers that expect one
// must follow up with ReadPayload.
func (c *Codec) ReadMessage() (Message, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			// Last line without trailing newline: still usable.
			return ParseMessage(trimEOL(line)), nil
		}
		return Message{}, camerrors.NewWireError("read control line", err)
	}
	return ParseMessage(trimEOL(line)), nil
}

// ReadPayload reads exactly n raw bytes immediately following a control line
// that declared size=n. It must be called before the next ReadMessage/Peek.
func (c *Codec) ReadPayload(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, camerrors.NewWireError("read sized payload", err)
	}
	return buf, nil
}

// ReadPayloadInto reads exactly len(buf) raw bytes into a caller-supplied
// buffer, the same wire contract as ReadPayload but without allocating: it
// lets a caller on a hot, single-owner read path (e.g. an upstream talkback
// AUDIO_FRAME) hand in a pooled buffer instead.
func (c *Codec) ReadPayloadInto(buf []byte) error {
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return camerrors.NewWireError("read sized payload", err)
	}
	return nil
}

// PeekIsBinaryFrame reports whether the next byte on the stream is the v3
// binary frame marker (0x00), without consuming it. Callers on a v2
// connection should never call this; v3 callers must call it before every
// read to decide whether to read a binary frame or a control line.
func (c *Codec) PeekIsBinaryFrame() (bool, error) {
	b, err := c.r.Peek(1)
	if err != nil {
		return false, camerrors.NewWireError("peek frame marker", err)
	}
	return b[0] == binaryFrameMarker, nil
}

// ReadBinaryFrame consumes the v3 marker byte, the 12-byte header, and the
// frame payload. Call only after PeekIsBinaryFrame returned true.
func (c *Codec) ReadBinaryFrame() (BinaryFrame, error) {
	marker, err := c.r.ReadByte()
	if err != nil {
		return BinaryFrame{}, camerrors.NewWireError("read frame marker", err)
	}
	if marker != binaryFrameMarker {
		return BinaryFrame{}, camerrors.NewWireError("read frame marker",
			fmt.Errorf("expected 0x%02x, got 0x%02x", binaryFrameMarker, marker))
	}
	var hdr [binaryFrameHeaderLen]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return BinaryFrame{}, camerrors.NewWireError("read frame header", err)
	}
	epoch := binary.BigEndian.Uint32(hdr[0:4])
	flags := binary.BigEndian.Uint32(hdr[4:8])
	size := binary.BigEndian.Uint32(hdr[8:12])
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return BinaryFrame{}, camerrors.NewWireError("read frame payload", err)
	}
	return BinaryFrame{
		Epoch:      epoch,
		IsKeyframe: flags&keyframeFlag != 0,
		Payload:    payload,
	}, nil
}

// WriteMessage serializes m as a control line and flushes it immediately.
func (c *Codec) WriteMessage(m Message) error {
	if _, err := c.w.WriteString(m.String()); err != nil {
		return camerrors.NewWireError("write control line", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return camerrors.NewWireError("write control line", err)
	}
	if err := c.w.Flush(); err != nil {
		return camerrors.NewWireError("flush control line", err)
	}
	return nil
}

// WriteSizedMessage writes m (which must declare size=len(payload) itself;
// callers build it via WithUint64("size", ...)) followed immediately by the
// raw payload bytes, matching the v2 legacy text-framed convention used for
// FRAME and AUDIO_FRAME.
func (c *Codec) WriteSizedMessage(m Message, payload []byte) error {
	if _, err := c.w.WriteString(m.String()); err != nil {
		return camerrors.NewWireError("write sized line", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return camerrors.NewWireError("write sized line", err)
	}
	if len(payload) > 0 {
		if _, err := c.w.Write(payload); err != nil {
			return camerrors.NewWireError("write sized payload", err)
		}
	}
	if err := c.w.Flush(); err != nil {
		return camerrors.NewWireError("flush sized message", err)
	}
	return nil
}

// WriteMessageThenPayloads writes m as a control line, then each payload in
// payloads back to back with no separators, flushing once at the end. It is
// the general form WriteSizedMessage builds on for messages that declare
// more than one trailing byte run, e.g. CSD's sps bytes followed by pps
// bytes.
func (c *Codec) WriteMessageThenPayloads(m Message, payloads ...[]byte) error {
	if _, err := c.w.WriteString(m.String()); err != nil {
		return camerrors.NewWireError("write control line", err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return camerrors.NewWireError("write control line", err)
	}
	for _, p := range payloads {
		if len(p) == 0 {
			continue
		}
		if _, err := c.w.Write(p); err != nil {
			return camerrors.NewWireError("write payload", err)
		}
	}
	if err := c.w.Flush(); err != nil {
		return camerrors.NewWireError("flush message", err)
	}
	return nil
}

// WriteBinaryFrame writes a v3 binary video frame envelope: the 0x00 marker,
// the 12-byte big-endian header, then the payload.
func (c *Codec) WriteBinaryFrame(epoch uint32, isKeyframe bool, payload []byte) error {
	var buf [1 + binaryFrameHeaderLen]byte
	buf[0] = binaryFrameMarker
	binary.BigEndian.PutUint32(buf[1:5], epoch)
	var flags uint32
	if isKeyframe {
		flags |= keyframeFlag
	}
	binary.BigEndian.PutUint32(buf[5:9], flags)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(payload)))
	if _, err := c.w.Write(buf[:]); err != nil {
		return camerrors.NewWireError("write frame header", err)
	}
	if len(payload) > 0 {
		if _, err := c.w.Write(payload); err != nil {
			return camerrors.NewWireError("write frame payload", err)
		}
	}
	if err := c.w.Flush(); err != nil {
		return camerrors.NewWireError("flush frame", err)
	}
	return nil
}

// trimEOL strips a trailing "\n" or "\r\n" from a line read by ReadString.
func trimEOL(s string) string {
	n := len(s)
	if n > 0 && s[n-1] == '\n' {
		n--
	}
	if n > 0 && s[n-1] == '\r' {
		n--
	}
	return s[:n]
}
