package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/wire"
)

func fixedSalt(b []byte) func() ([]byte, error) {
	return func() ([]byte, error) { return b, nil }
}

func TestServerHandshake_Success(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn)
	clientCodec := wire.NewCodec(clientConn)

	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	resultCh := make(chan HandshakeResult, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := ServerHandshake(serverCodec, "123456", fixedSalt(salt), nil)
		resultCh <- res
		errCh <- err
	}()

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 3)))

	proto, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "PROTO", proto.Tag)

	challenge, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_CHALLENGE", challenge.Tag)
	saltHex, ok := challenge.Get("salt")
	require.True(t, ok)

	hash := ChallengeResponse("123456", saltHex)
	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", hash)))

	ok1, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_OK", ok1.Tag)

	sess, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "SESSION", sess.Tag)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
	result := <-resultCh
	assert.Equal(t, 3, result.Version)
	assert.NotEmpty(t, result.SessionID)
	sessionID, _ := sess.Get("id")
	assert.Equal(t, result.SessionID, sessionID)
}

func TestServerHandshake_WrongPassword(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn)
	clientCodec := wire.NewCodec(clientConn)

	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverCodec, "123456", fixedSalt(salt), nil)
		errCh <- err
	}()

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 2)))
	_, err := clientCodec.ReadMessage() // AUTH_CHALLENGE
	require.NoError(t, err)

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", "not-the-right-hash")))

	fail, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_FAIL", fail.Tag)

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, camerrors.IsProtocolError(err))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
}

func TestServerHandshake_RejectsLegacyPlaintextAuth(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn)
	clientCodec := wire.NewCodec(clientConn)

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverCodec, "123456", fixedSalt([]byte("0123456789abcdef")), nil)
		errCh <- err
	}()

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 2)))
	_, err := clientCodec.ReadMessage() // AUTH_CHALLENGE
	require.NoError(t, err)

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("AUTH").WithString("password", "123456")))

	fail, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_FAIL", fail.Tag)

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
}

func TestServerHandshake_AdmitFalseSendsAuthFailDespiteCorrectPassword(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCodec := wire.NewCodec(serverConn)
	clientCodec := wire.NewCodec(clientConn)

	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	errCh := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverCodec, "123456", fixedSalt(salt), func() bool { return false })
		errCh <- err
	}()

	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("HELLO").WithString("client", "viewer").WithUint64("version", 2)))
	challenge, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	saltHex, _ := challenge.Get("salt")

	hash := ChallengeResponse("123456", saltHex)
	require.NoError(t, clientCodec.WriteMessage(wire.NewMessage("AUTH_RESPONSE").WithString("hash", hash)))

	fail, err := clientCodec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "AUTH_FAIL", fail.Tag, "a correct password must still be rejected when admit() refuses, identically to a wrong password")

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server handshake")
	}
}

func TestChallengeResponse_Deterministic(t *testing.T) {
	a := ChallengeResponse("123456", "deadbeef")
	b := ChallengeResponse("123456", "deadbeef")
	assert.Equal(t, a, b)
	c := ChallengeResponse("123456", "beefdead")
	assert.NotEqual(t, a, c)
}
