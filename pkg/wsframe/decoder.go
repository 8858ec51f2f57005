package wsframe

import "errors"

// Message is one complete application message or control frame.
type Message struct {
	Opcode  Opcode
	Payload []byte
}

// Decoder accumulates raw bytes across reads and reassembles fragmented
// messages. It is not safe for concurrent use; one connection owns one
// decoder.
type Decoder struct {
	buf        []byte
	maxMessage int

	fragOp    Opcode
	fragments []byte
	inMessage bool
}

// NewDecoder creates a decoder. maxMessage bounds a single frame and a
// reassembled message; zero disables the check.
func NewDecoder(maxMessage int) *Decoder {
	return &Decoder{maxMessage: maxMessage}
}

// Feed appends data and returns every message that became complete. Control
// frames are returned as they arrive, also in the middle of a fragmented
// message. After an error the decoder must be discarded.
func (d *Decoder) Feed(data []byte) ([]Message, error) {
	d.buf = append(d.buf, data...)

	var out []Message
	for {
		f, n, err := Decode(d.buf, d.maxMessage)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return out, err
		}
		d.buf = d.buf[n:]

		msg, ok, err := d.assemble(f)
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, msg)
		}
	}

	// Release the consumed prefix once the buffer drains.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) assemble(f Frame) (Message, bool, error) {
	if f.Opcode.IsControl() {
		return Message{Opcode: f.Opcode, Payload: f.Payload}, true, nil
	}

	if f.Opcode == OpContinuation {
		if !d.inMessage {
			return Message{}, false, ErrBadContinuation
		}
	} else {
		if d.inMessage {
			return Message{}, false, ErrFragmentExpected
		}
		if f.Fin {
			return Message{Opcode: f.Opcode, Payload: f.Payload}, true, nil
		}
		d.inMessage = true
		d.fragOp = f.Opcode
		d.fragments = d.fragments[:0]
	}

	if d.maxMessage > 0 && len(d.fragments)+len(f.Payload) > d.maxMessage {
		return Message{}, false, ErrFrameTooLarge
	}
	d.fragments = append(d.fragments, f.Payload...)
	if !f.Fin {
		return Message{}, false, nil
	}

	msg := Message{Opcode: d.fragOp, Payload: append([]byte(nil), d.fragments...)}
	d.inMessage = false
	d.fragments = d.fragments[:0]
	return msg, true, nil
}
