package websocket

import (
	"errors"
	"fmt"
	"net/http"

	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/wsframe"
)

// State of a raw connection.
type State int

const (
	StateConnecting State = iota
	StateHandshaking
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Step is what the connection must do after feeding bytes to a Machine.
type Step struct {
	// Write holds raw bytes to send, in order.
	Write [][]byte
	// Upgraded is set on the step that completed the handshake.
	Upgraded *http.Request
	// Messages are complete application payloads received while open.
	Messages [][]byte
	// Close asks the connection to stop reading and tear down once Write
	// has been flushed.
	Close bool
	// Err explains why the connection is closing, if it is not a normal close.
	Err error
}

// Machine is the per-connection protocol state. It performs no I/O and is
// owned by the goroutine reading the connection.
type Machine struct {
	state        State
	buf          []byte
	maxHandshake int
	decoder      *wsframe.Decoder
}

// NewMachine creates a machine in StateConnecting. maxHandshake bounds the
// request head, maxMessage bounds a reassembled message (zero disables).
func NewMachine(maxHandshake, maxMessage int) *Machine {
	return &Machine{
		state:        StateConnecting,
		maxHandshake: maxHandshake,
		decoder:      wsframe.NewDecoder(maxMessage),
	}
}

func (m *Machine) State() State {
	return m.state
}

// Feed consumes bytes read from the transport.
func (m *Machine) Feed(data []byte) Step {
	switch m.state {
	case StateConnecting:
		return m.feedHandshake(data)
	case StateOpen, StateClosing:
		var step Step
		m.feedFrames(data, &step)
		return step
	default:
		return Step{}
	}
}

// Shutdown starts a server-initiated close. It returns the close frame to
// write, or nil when the connection is not open.
func (m *Machine) Shutdown(code uint16, reason string) []byte {
	if m.state != StateOpen {
		return nil
	}
	m.state = StateClosing
	return wsframe.CloseFrame(code, reason)
}

// Release marks the connection as fully closed.
func (m *Machine) Release() {
	m.state = StateClosed
	m.buf = nil
}

func (m *Machine) feedHandshake(data []byte) Step {
	m.buf = append(m.buf, data...)

	end := wsframe.HeaderEnd(m.buf)
	if end < 0 {
		if m.maxHandshake > 0 && len(m.buf) > m.maxHandshake {
			return m.reject(wsframe.RejectBadRequest(),
				apperror.New(apperror.KindHandshakeRejected, "websocket.Machine", "handshake request too large"))
		}
		return Step{}
	}

	m.state = StateHandshaking
	head, rest := m.buf[:end], m.buf[end:]
	m.buf = nil

	req, err := wsframe.ParseRequest(head)
	if err != nil {
		return m.reject(wsframe.RejectBadRequest(), err)
	}
	resp, err := wsframe.Negotiate(req)
	if err != nil {
		return m.reject(resp, err)
	}

	m.state = StateOpen
	step := Step{Write: [][]byte{resp.Bytes()}, Upgraded: req}
	if len(rest) > 0 {
		m.feedFrames(rest, &step)
	}
	return step
}

func (m *Machine) reject(resp wsframe.Response, err error) Step {
	m.state = StateClosed
	m.buf = nil
	return Step{Write: [][]byte{resp.Bytes()}, Close: true, Err: err}
}

func (m *Machine) feedFrames(data []byte, step *Step) {
	msgs, err := m.decoder.Feed(data)

	for _, msg := range msgs {
		switch msg.Opcode {
		case wsframe.OpText, wsframe.OpBinary:
			if m.state == StateOpen {
				step.Messages = append(step.Messages, msg.Payload)
			}
		case wsframe.OpPing:
			// No pongs after our own close frame.
			if m.state == StateOpen {
				step.Write = append(step.Write, wsframe.Control(wsframe.OpPong, msg.Payload))
			}
		case wsframe.OpPong:
		case wsframe.OpClose:
			code, _ := wsframe.ParseClosePayload(msg.Payload)
			switch {
			case len(msg.Payload) == 0:
				code = wsframe.CloseNormal
			case len(msg.Payload) == 1 || !wsframe.ValidCloseCode(code):
				code = wsframe.CloseProtocolError
			}
			if m.state == StateOpen {
				step.Write = append(step.Write, wsframe.CloseFrame(code, ""))
			}
			m.state = StateClosing
			step.Close = true
			return
		}
	}

	if err != nil {
		code := wsframe.CloseProtocolError
		if errors.Is(err, wsframe.ErrFrameTooLarge) {
			code = wsframe.CloseMessageTooBig
		}
		if m.state == StateOpen {
			step.Write = append(step.Write, wsframe.CloseFrame(code, ""))
		}
		m.state = StateClosing
		step.Close = true
		step.Err = err
	}
}
