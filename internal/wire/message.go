// Package wire implements the control-message grammar and the two frame
// envelope formats (v2 legacy size-framed, v3 binary-marker) shared by the
// stream server and the viewer client. It never dials sockets or makes
// protocol-state decisions; it only encodes and decodes bytes.
package wire

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// field is a single KEY=VALUE segment, order-preserving for round-trip
// serialization.
type field struct {
	key   string
	value string
}

// Message is a parsed control line: TAG(|KEY=VALUE)*. Parsing never fails;
// malformed segments are silently skipped per the grammar's parser contract.
type Message struct {
	Tag    string
	fields []field
}

// NewMessage builds a message with the given tag and no fields. Use With* to
// attach fields before serializing.
func NewMessage(tag string) Message {
	return Message{Tag: tag}
}

// WithString attaches a string field and returns the message for chaining.
func (m Message) WithString(key, value string) Message {
	m.fields = append(m.fields, field{key: key, value: value})
	return m
}

// WithUint64 attaches a field formatted as an unsigned base-10 integer.
func (m Message) WithUint64(key string, value uint64) Message {
	return m.WithString(key, strconv.FormatUint(value, 10))
}

// WithInt64 attaches a field formatted as a signed base-10 integer.
func (m Message) WithInt64(key string, value int64) Message {
	return m.WithString(key, strconv.FormatInt(value, 10))
}

// WithBool attaches a field formatted as "true"/"false".
func (m Message) WithBool(key string, value bool) Message {
	return m.WithString(key, strconv.FormatBool(value))
}

// WithHex attaches a field formatted as lower-case hex.
func (m Message) WithHex(key string, value []byte) Message {
	return m.WithString(key, hex.EncodeToString(value))
}

// ParseMessage parses a single control line (without its trailing newline).
// Segments without '=' are skipped; unknown keys are kept and simply ignored
// by callers that don't look for them. Parsing itself never returns an error.
func ParseMessage(line string) Message {
	parts := strings.Split(line, "|")
	if len(parts) == 0 {
		return Message{}
	}
	m := Message{Tag: parts[0]}
	for _, seg := range parts[1:] {
		eq := strings.IndexByte(seg, '=')
		if eq < 0 {
			continue // segment without '=' is skipped, not an error
		}
		m.fields = append(m.fields, field{key: seg[:eq], value: seg[eq+1:]})
	}
	return m
}

// String serializes the message back to TAG(|KEY=VALUE)* with no trailing
// newline; callers append "\n" when writing to the wire.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Tag)
	for _, f := range m.fields {
		b.WriteByte('|')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

// Get returns the string value of key and whether it was present.
func (m Message) Get(key string) (string, bool) {
	for _, f := range m.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// GetUint32 coerces key to a uint32. Returns ok=false ("no value") if the
// key is absent or not a valid unsigned integer.
func (m Message) GetUint32(key string) (uint32, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// GetUint16 coerces key to a uint16.
func (m Message) GetUint16(key string) (uint16, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}

// GetUint8 coerces key to a uint8.
func (m Message) GetUint8(key string) (uint8, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

// GetInt64 coerces key to an int64.
func (m Message) GetInt64(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetBool coerces key to a bool ("true"/"false").
func (m Message) GetBool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok {
		return false, false
	}
	switch v {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

// GetHex coerces key to raw bytes, decoded from a hex string.
func (m Message) GetHex(key string) ([]byte, bool) {
	v, ok := m.Get(key)
	if !ok {
		return nil, false
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// ClampHelloVersion clamps a HELLO|version=N field to the supported [2, 3]
// range per the grammar's parser contract.
func ClampHelloVersion(v int) int {
	if v < 2 {
		return 2
	}
	if v > 3 {
		return 3
	}
	return v
}
