// Package osc implements the wire encoding and UDP transport for Open
// Sound Control messages, following the raw net.UDPConn socket pattern:
// no third-party OSC or UDP-framing library is retrieved anywhere in
// the example corpus (grep across every _examples/**/go.mod and *.go
// for "websocket", "UDPConn", "osc" returns nothing), so the socket
// itself is stdlib net, while message encode/decode follows the OSC
// 1.0 spec's wire format exactly as spec.md §6 requires ("must match
// the DAW remote script verbatim").
package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Message is one OSC message: an address pattern plus a typed
// argument list. Only the argument types actually used by the DAW's
// remote script are supported: int32, float32, and string.
type Message struct {
	Address string
	Args    []any // int32, float32, or string
}

// Int returns the int32 argument at index i.
func (m Message) Int(i int) (int32, bool) {
	if i < 0 || i >= len(m.Args) {
		return 0, false
	}
	v, ok := m.Args[i].(int32)
	return v, ok
}

// Float returns the float32 argument at index i, also accepting int32
// (the DAW's remote script sometimes replies with an integer where a
// float is semantically expected, e.g. an integral parameter value).
func (m Message) Float(i int) (float32, bool) {
	if i < 0 || i >= len(m.Args) {
		return 0, false
	}
	switch v := m.Args[i].(type) {
	case float32:
		return v, true
	case int32:
		return float32(v), true
	}
	return 0, false
}

// String returns the string argument at index i.
func (m Message) String(i int) (string, bool) {
	if i < 0 || i >= len(m.Args) {
		return "", false
	}
	v, ok := m.Args[i].(string)
	return v, ok
}

// Encode serializes m into an OSC 1.0 packet.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer

	if err := writeOSCString(&buf, m.Address); err != nil {
		return nil, fmt.Errorf("osc: encode address: %w", err)
	}

	tags := make([]byte, 0, len(m.Args)+2)
	tags = append(tags, ',')
	for _, a := range m.Args {
		switch a.(type) {
		case int32:
			tags = append(tags, 'i')
		case float32:
			tags = append(tags, 'f')
		case string:
			tags = append(tags, 's')
		default:
			return nil, fmt.Errorf("osc: encode %s: unsupported argument type %T", m.Address, a)
		}
	}
	if err := writeOSCString(&buf, string(tags)); err != nil {
		return nil, fmt.Errorf("osc: encode type tags: %w", err)
	}

	for _, a := range m.Args {
		switch v := a.(type) {
		case int32:
			if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
				return nil, fmt.Errorf("osc: encode int32 arg: %w", err)
			}
		case float32:
			if err := binary.Write(&buf, binary.BigEndian, math.Float32bits(v)); err != nil {
				return nil, fmt.Errorf("osc: encode float32 arg: %w", err)
			}
		case string:
			if err := writeOSCString(&buf, v); err != nil {
				return nil, fmt.Errorf("osc: encode string arg: %w", err)
			}
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a raw OSC packet into a Message.
func Decode(data []byte) (Message, error) {
	addr, rest, err := readOSCString(data)
	if err != nil {
		return Message{}, fmt.Errorf("osc: decode address: %w", err)
	}
	tags, rest, err := readOSCString(rest)
	if err != nil {
		return Message{}, fmt.Errorf("osc: decode %s: type tags: %w", addr, err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return Message{}, fmt.Errorf("osc: decode %s: malformed type tag string %q", addr, tags)
	}

	args := make([]any, 0, len(tags)-1)
	for _, tag := range tags[1:] {
		switch tag {
		case 'i':
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("osc: decode %s: truncated int32 argument", addr)
			}
			args = append(args, int32(binary.BigEndian.Uint32(rest[:4])))
			rest = rest[4:]
		case 'f':
			if len(rest) < 4 {
				return Message{}, fmt.Errorf("osc: decode %s: truncated float32 argument", addr)
			}
			args = append(args, math.Float32frombits(binary.BigEndian.Uint32(rest[:4])))
			rest = rest[4:]
		case 's':
			var s string
			s, rest, err = readOSCString(rest)
			if err != nil {
				return Message{}, fmt.Errorf("osc: decode %s: string argument: %w", addr, err)
			}
			args = append(args, s)
		default:
			return Message{}, fmt.Errorf("osc: decode %s: unsupported type tag %q", addr, tag)
		}
	}

	return Message{Address: addr, Args: args}, nil
}

// writeOSCString writes s null-terminated and padded to a 4-byte
// boundary, per the OSC 1.0 spec.
func writeOSCString(buf *bytes.Buffer, s string) error {
	buf.WriteString(s)
	buf.WriteByte(0)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return nil
}

// readOSCString reads a null-terminated, 4-byte-padded string from
// the front of data, returning the string and the remaining bytes.
func readOSCString(data []byte) (string, []byte, error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("unterminated OSC string")
	}
	s := string(data[:nul])
	padded := (nul + 4) &^ 3
	if padded > len(data) {
		return "", nil, fmt.Errorf("truncated OSC string padding")
	}
	return s, data[padded:], nil
}
