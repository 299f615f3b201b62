package wire

import "testing"

func TestParseMessageBasic(t *testing.T) {
	m := ParseMessage("HELLO|client=viewer|version=3")
	if m.Tag != "HELLO" {
		t.Fatalf("expected tag HELLO, got %s", m.Tag)
	}
	v, ok := m.Get("client")
	if !ok || v != "viewer" {
		t.Fatalf("expected client=viewer, got %q ok=%v", v, ok)
	}
	n, ok := m.GetUint32("version")
	if !ok || n != 3 {
		t.Fatalf("expected version=3, got %d ok=%v", n, ok)
	}
}

func TestParseMessageSkipsMalformedSegments(t *testing.T) {
	m := ParseMessage("SET_STREAM|width=640|garbage|height=480")
	if _, ok := m.Get("garbage"); ok {
		t.Fatalf("segment without '=' should have been skipped")
	}
	w, ok := m.GetUint32("width")
	if !ok || w != 640 {
		t.Fatalf("expected width=640, got %d ok=%v", w, ok)
	}
	h, ok := m.GetUint32("height")
	if !ok || h != 480 {
		t.Fatalf("expected height=480, got %d ok=%v", h, ok)
	}
}

func TestParseMessageUnknownKeysIgnored(t *testing.T) {
	m := ParseMessage("PING|tsMs=123|extra=whatever")
	ts, ok := m.GetInt64("tsMs")
	if !ok || ts != 123 {
		t.Fatalf("expected tsMs=123, got %d ok=%v", ts, ok)
	}
}

func TestGetUint32NonNumericReturnsNoValue(t *testing.T) {
	m := ParseMessage("SET_STREAM|width=notanumber")
	_, ok := m.GetUint32("width")
	if ok {
		t.Fatalf("expected ok=false for non-numeric width")
	}
}

func TestGetBool(t *testing.T) {
	m := ParseMessage("RECORDING|active=true")
	v, ok := m.GetBool("active")
	if !ok || !v {
		t.Fatalf("expected active=true, got %v ok=%v", v, ok)
	}
	m2 := ParseMessage("RECORDING|active=nope")
	_, ok2 := m2.GetBool("active")
	if ok2 {
		t.Fatalf("expected ok=false for non-boolean value")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := NewMessage("STREAM_ACCEPTED").
		WithUint64("epoch", 4).
		WithUint64("width", 1280).
		WithUint64("height", 720).
		WithUint64("fps", 30).
		WithUint64("bitrate", 2000000)

	line := m.String()
	reparsed := ParseMessage(line)
	epoch, ok := reparsed.GetUint32("epoch")
	if !ok || epoch != 4 {
		t.Fatalf("round trip lost epoch field: %q", line)
	}
	bitrate, ok := reparsed.GetUint32("bitrate")
	if !ok || bitrate != 2000000 {
		t.Fatalf("round trip lost bitrate field: %q", line)
	}
}

func TestMessageNoFields(t *testing.T) {
	m := ParseMessage("AUTH_OK")
	if m.Tag != "AUTH_OK" {
		t.Fatalf("expected tag AUTH_OK, got %s", m.Tag)
	}
	if m.String() != "AUTH_OK" {
		t.Fatalf("expected serialized form AUTH_OK, got %q", m.String())
	}
}

func TestHexFields(t *testing.T) {
	salt := []byte{0x01, 0x02, 0x03, 0x04}
	m := NewMessage("AUTH_CHALLENGE").WithString("v", "2").WithHex("salt", salt)
	reparsed := ParseMessage(m.String())
	got, ok := reparsed.GetHex("salt")
	if !ok || len(got) != len(salt) {
		t.Fatalf("expected round-tripped salt, got %x ok=%v", got, ok)
	}
	for i := range salt {
		if got[i] != salt[i] {
			t.Fatalf("salt byte %d mismatch: got %x want %x", i, got[i], salt[i])
		}
	}
}

func TestClampHelloVersion(t *testing.T) {
	cases := map[int]int{1: 2, 2: 2, 3: 3, 4: 3, 0: 2, 99: 3}
	for in, want := range cases {
		if got := ClampHelloVersion(in); got != want {
			t.Fatalf("ClampHelloVersion(%d) = %d, want %d", in, got, want)
		}
	}
}
