package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
	"github.com/duskwatch/camstream/internal/wire"
)

// minHelloVersion / maxHelloVersion mirror the wire grammar's clamp range.
const (
	minHelloVersion = 2
	maxHelloVersion = 3
)

// RandomSalt returns 16 random bytes for use as the AUTH_CHALLENGE salt.
// Injectable in tests that need a deterministic challenge.
func RandomSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("session: generate salt: %w", err)
	}
	return salt, nil
}

// ChallengeResponse computes hex(hmac_sha256(password, saltHex)), matching
// what a conforming viewer sends back in AUTH_RESPONSE.
func ChallengeResponse(password string, saltHex string) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(saltHex))
	return hex.EncodeToString(mac.Sum(nil))
}

// HandshakeResult carries what the server learned during the handshake.
type HandshakeResult struct {
	Version   int
	SessionID string
}

// ServerHandshake drives the server side of steps 1-4 of the handshake
// protocol over codec. It never panics on malformed input; any violation of
// the grammar or a failed auth check returns a *camerrors.HandshakeError and
// the caller must close the connection.
// admit, when non-nil, is consulted right before AUTH_OK would be sent. A
// false return sends AUTH_FAIL instead of AUTH_OK even though the password
// matched, so that a server at its session cap rejects the extra connection
// only after the full challenge/response exchange — identical on the wire
// to any other rejection, so the cap itself isn't fingerprintable.
func ServerHandshake(codec *wire.Codec, password string, saltSource func() ([]byte, error), admit func() bool) (HandshakeResult, error) {
	if saltSource == nil {
		saltSource = RandomSalt
	}

	hello, err := codec.ReadMessage()
	if err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("read HELLO", err)
	}
	if hello.Tag != "HELLO" {
		return HandshakeResult{}, camerrors.NewHandshakeError("read HELLO",
			fmt.Errorf("expected HELLO, got %s", hello.Tag))
	}
	client, _ := hello.Get("client")
	if client != "viewer" {
		return HandshakeResult{}, camerrors.NewHandshakeError("read HELLO",
			fmt.Errorf("unsupported client %q", client))
	}
	rawVersion, _ := hello.GetUint32("version")
	version := wire.ClampHelloVersion(int(rawVersion))

	if version >= 3 {
		if err := codec.WriteMessage(wire.NewMessage("PROTO").WithUint64("version", uint64(version))); err != nil {
			return HandshakeResult{}, camerrors.NewHandshakeError("write PROTO", err)
		}
	}

	salt, err := saltSource()
	if err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("generate salt", err)
	}
	saltHex := hex.EncodeToString(salt)
	challenge := wire.NewMessage("AUTH_CHALLENGE").WithString("v", "2").WithString("salt", saltHex)
	if err := codec.WriteMessage(challenge); err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("write AUTH_CHALLENGE", err)
	}

	resp, err := codec.ReadMessage()
	if err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("read AUTH_RESPONSE", err)
	}
	if resp.Tag == "AUTH" {
		// Legacy plaintext AUTH|password=... is rejected outright.
		_ = codec.WriteMessage(wire.NewMessage("AUTH_FAIL"))
		return HandshakeResult{}, camerrors.NewHandshakeError("read AUTH_RESPONSE",
			fmt.Errorf("legacy plaintext AUTH is rejected"))
	}
	if resp.Tag != "AUTH_RESPONSE" {
		_ = codec.WriteMessage(wire.NewMessage("AUTH_FAIL"))
		return HandshakeResult{}, camerrors.NewHandshakeError("read AUTH_RESPONSE",
			fmt.Errorf("expected AUTH_RESPONSE, got %s", resp.Tag))
	}
	hashHex, _ := resp.Get("hash")
	want := ChallengeResponse(password, saltHex)
	if !hmac.Equal([]byte(hashHex), []byte(want)) {
		_ = codec.WriteMessage(wire.NewMessage("AUTH_FAIL"))
		return HandshakeResult{}, camerrors.NewHandshakeError("verify AUTH_RESPONSE",
			fmt.Errorf("hash mismatch"))
	}

	if admit != nil && !admit() {
		_ = codec.WriteMessage(wire.NewMessage("AUTH_FAIL"))
		return HandshakeResult{}, camerrors.NewHandshakeError("admit session",
			fmt.Errorf("session registry at capacity"))
	}

	sessionID := uuid.NewString()
	if err := codec.WriteMessage(wire.NewMessage("AUTH_OK")); err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("write AUTH_OK", err)
	}
	if err := codec.WriteMessage(wire.NewMessage("SESSION").WithString("id", sessionID)); err != nil {
		return HandshakeResult{}, camerrors.NewHandshakeError("write SESSION", err)
	}

	return HandshakeResult{Version: version, SessionID: sessionID}, nil
}

// SendStreamAccepted writes STREAM_ACCEPTED|epoch=N|width|height|fps|bitrate.
func SendStreamAccepted(codec *wire.Codec, epoch uint32, cfg frame.StreamConfig) error {
	m := wire.NewMessage("STREAM_ACCEPTED").
		WithUint64("epoch", uint64(epoch)).
		WithUint64("width", uint64(cfg.Width)).
		WithUint64("height", uint64(cfg.Height)).
		WithUint64("fps", uint64(cfg.FPS)).
		WithUint64("bitrate", uint64(cfg.BitrateBps))
	if err := codec.WriteMessage(m); err != nil {
		return camerrors.NewHandshakeError("write STREAM_ACCEPTED", err)
	}
	return nil
}

// SendCSD writes CSD|epoch=N|sps=<u16>|pps=<u16> followed immediately by the
// raw SPS bytes then the raw PPS bytes, with no separator between them; the
// declared lengths are what let a reader split them back apart.
func SendCSD(codec *wire.Codec, csd frame.CodecSpecificData) error {
	m := wire.NewMessage("CSD").
		WithUint64("epoch", uint64(csd.Epoch)).
		WithUint64("sps", uint64(len(csd.SPS))).
		WithUint64("pps", uint64(len(csd.PPS)))
	if err := codec.WriteMessageThenPayloads(m, csd.SPS, csd.PPS); err != nil {
		return camerrors.NewHandshakeError("write CSD", err)
	}
	return nil
}

// SendStreamState writes STREAM_STATE|code=N|epoch=N.
func SendStreamState(codec *wire.Codec, code frame.StreamStateCode, epoch uint32) error {
	m := wire.NewMessage("STREAM_STATE").WithUint64("code", uint64(code)).WithUint64("epoch", uint64(epoch))
	if err := codec.WriteMessage(m); err != nil {
		return camerrors.NewHandshakeError("write STREAM_STATE", err)
	}
	return nil
}
