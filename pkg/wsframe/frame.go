// Package wsframe implements the framing and upgrade handshake of the
// WebSocket wire protocol (RFC 6455) over plain byte buffers, so a connection
// layer can drive it from whatever reads it performs.
package wsframe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsControl reports whether op is a close, ping or pong opcode.
func (op Opcode) IsControl() bool {
	return op&0x8 != 0
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return fmt.Sprintf("opcode(%#x)", byte(op))
}

// Close status codes used by the server.
const (
	CloseNormal          uint16 = 1000
	CloseGoingAway       uint16 = 1001
	CloseProtocolError   uint16 = 1002
	CloseUnsupportedData uint16 = 1003
	CloseMessageTooBig   uint16 = 1009
)

const (
	finBit  = 0x80
	rsvBits = 0x70
	maskBit = 0x80

	maxInlineLength  = 125
	maxControlLength = 125
	len16Marker      = 126
	len64Marker      = 127
)

var (
	// ErrIncomplete means more bytes are needed before a frame can be decoded.
	ErrIncomplete       = errors.New("wsframe: incomplete frame")
	ErrReservedBits     = errors.New("wsframe: reserved bits set")
	ErrUnknownOpcode    = errors.New("wsframe: unknown opcode")
	ErrFrameTooLarge    = errors.New("wsframe: frame exceeds size limit")
	ErrBadControlFrame  = errors.New("wsframe: control frame fragmented or longer than 125 bytes")
	ErrBadContinuation  = errors.New("wsframe: unexpected continuation frame")
	ErrFragmentExpected = errors.New("wsframe: new data frame while a fragmented message is open")
)

// Frame is one decoded wire frame with its payload already unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// Encode serializes f. When f.Masked is set the payload is masked with
// f.MaskKey on the wire; f.Payload itself is left untouched.
func Encode(f Frame) []byte {
	n := len(f.Payload)
	header := make([]byte, 2, 14)

	header[0] = byte(f.Opcode) & 0x0F
	if f.Fin {
		header[0] |= finBit
	}

	var maskFlag byte
	if f.Masked {
		maskFlag = maskBit
	}

	switch {
	case n <= maxInlineLength:
		header[1] = maskFlag | byte(n)
	case n <= 0xFFFF:
		header[1] = maskFlag | len16Marker
		header = binary.BigEndian.AppendUint16(header, uint16(n))
	default:
		header[1] = maskFlag | len64Marker
		header = binary.BigEndian.AppendUint64(header, uint64(n))
	}

	if f.Masked {
		header = append(header, f.MaskKey[:]...)
	}

	out := make([]byte, len(header)+n)
	copy(out, header)
	copy(out[len(header):], f.Payload)
	if f.Masked {
		mask(out[len(header):], f.MaskKey)
	}
	return out
}

// Text builds an unmasked, final text frame. Its first byte is always 0x81.
func Text(payload []byte) []byte {
	return Encode(Frame{Fin: true, Opcode: OpText, Payload: payload})
}

// Control builds an unmasked control frame. Payloads longer than 125 bytes
// are truncated.
func Control(op Opcode, payload []byte) []byte {
	if len(payload) > maxControlLength {
		payload = payload[:maxControlLength]
	}
	return Encode(Frame{Fin: true, Opcode: op, Payload: payload})
}

// ClosePayload encodes a close status code and reason.
func ClosePayload(code uint16, reason string) []byte {
	out := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), code)
	return append(out, reason...)
}

// CloseFrame builds a close frame carrying code and reason.
func CloseFrame(code uint16, reason string) []byte {
	return Control(OpClose, ClosePayload(code, reason))
}

// ParseClosePayload splits a close payload into code and reason. An empty
// payload yields 1005 (no status received).
func ParseClosePayload(p []byte) (uint16, string) {
	if len(p) < 2 {
		return 1005, ""
	}
	return binary.BigEndian.Uint16(p[:2]), string(p[2:])
}

// ValidCloseCode reports whether a peer may send code in a close frame:
// the defined codes 1000-1003 and 1007-1014, and the registered and private
// ranges 3000-4999. Codes such as 1005, 1006 and 1015 never appear on the
// wire.
func ValidCloseCode(code uint16) bool {
	switch {
	case code >= 1000 && code <= 1003:
		return true
	case code >= 1007 && code <= 1014:
		return true
	case code >= 3000 && code <= 4999:
		return true
	}
	return false
}

// Decode reads one frame from the front of buf. It returns the frame and the
// number of bytes consumed, or ErrIncomplete when buf does not yet hold a
// whole frame. maxPayload <= 0 disables the size check.
func Decode(buf []byte, maxPayload int) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncomplete
	}

	b0, b1 := buf[0], buf[1]
	if b0&rsvBits != 0 {
		return Frame{}, 0, ErrReservedBits
	}

	f := Frame{
		Fin:    b0&finBit != 0,
		Opcode: Opcode(b0 & 0x0F),
		Masked: b1&maskBit != 0,
	}
	switch f.Opcode {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
	default:
		return Frame{}, 0, ErrUnknownOpcode
	}

	offset := 2
	length := uint64(b1 & 0x7F)
	switch length {
	case len16Marker:
		if len(buf) < offset+2 {
			return Frame{}, 0, ErrIncomplete
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case len64Marker:
		if len(buf) < offset+8 {
			return Frame{}, 0, ErrIncomplete
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length>>63 != 0 {
			return Frame{}, 0, ErrFrameTooLarge
		}
	}

	if f.Opcode.IsControl() && (!f.Fin || length > maxControlLength) {
		return Frame{}, 0, ErrBadControlFrame
	}
	if maxPayload > 0 && length > uint64(maxPayload) {
		return Frame{}, 0, ErrFrameTooLarge
	}

	if f.Masked {
		if len(buf) < offset+4 {
			return Frame{}, 0, ErrIncomplete
		}
		copy(f.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}

	if uint64(len(buf)-offset) < length {
		return Frame{}, 0, ErrIncomplete
	}
	end := offset + int(length)

	f.Payload = make([]byte, length)
	copy(f.Payload, buf[offset:end])
	if f.Masked {
		mask(f.Payload, f.MaskKey)
	}
	return f, end, nil
}

func mask(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}
