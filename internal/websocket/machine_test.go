package websocket

import (
	"strings"
	"testing"

	"ai-intent-chat-be/pkg/apperror"
	"ai-intent-chat-be/pkg/wsframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshake(version string) string {
	return "GET /?sessionId=machine-1 HTTP/1.1\r\n" +
		"Host: localhost\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: " + version + "\r\n\r\n"
}

func clientText(payload string) []byte {
	return wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpText, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte(payload)})
}

func TestMachineHandshakeAcrossReads(t *testing.T) {
	m := NewMachine(0, 0)
	raw := handshake("13")

	step := m.Feed([]byte(raw[:20]))
	assert.Empty(t, step.Write)
	assert.Equal(t, StateConnecting, m.State())

	step = m.Feed([]byte(raw[20:]))
	require.NotNil(t, step.Upgraded)
	assert.Equal(t, "machine-1", step.Upgraded.URL.Query().Get("sessionId"))
	require.Len(t, step.Write, 1)
	assert.True(t, strings.HasPrefix(string(step.Write[0]), "HTTP/1.1 101 "))
	assert.Equal(t, StateOpen, m.State())
	assert.False(t, step.Close)
}

func TestMachineBytesAfterHeadAreFramed(t *testing.T) {
	m := NewMachine(0, 0)
	data := append([]byte(handshake("13")), clientText(`{"message":"hi"}`)...)

	step := m.Feed(data)
	require.NotNil(t, step.Upgraded)
	require.Len(t, step.Messages, 1)
	assert.Equal(t, `{"message":"hi"}`, string(step.Messages[0]))
}

func TestMachineRejectsUnsupportedVersion(t *testing.T) {
	m := NewMachine(0, 0)

	step := m.Feed([]byte(handshake("8")))

	assert.Nil(t, step.Upgraded)
	assert.True(t, step.Close)
	assert.ErrorIs(t, step.Err, apperror.ErrHandshakeRejected)
	require.Len(t, step.Write, 1)
	assert.True(t, strings.HasPrefix(string(step.Write[0]), "HTTP/1.1 426 "))
	assert.Equal(t, StateClosed, m.State())

	// Nothing after a rejection is processed.
	assert.Equal(t, Step{}, m.Feed(clientText("ignored")))
}

func TestMachineRejectsOversizedHead(t *testing.T) {
	m := NewMachine(64, 0)

	step := m.Feed([]byte("GET / HTTP/1.1\r\nX-Padding: " + strings.Repeat("a", 100)))

	assert.True(t, step.Close)
	assert.ErrorIs(t, step.Err, apperror.ErrHandshakeRejected)
	assert.True(t, strings.HasPrefix(string(step.Write[0]), "HTTP/1.1 400 "))
	assert.Equal(t, StateClosed, m.State())
}

func TestMachineGarbageHead(t *testing.T) {
	m := NewMachine(0, 0)

	step := m.Feed([]byte("\x16\x03\x01\x02 nonsense\r\n\r\n"))

	assert.True(t, step.Close)
	assert.ErrorIs(t, step.Err, apperror.ErrHandshakeRejected)
	assert.Equal(t, StateClosed, m.State())
}

func openMachine(t *testing.T, maxMessage int) *Machine {
	t.Helper()
	m := NewMachine(0, maxMessage)
	require.NotNil(t, m.Feed([]byte(handshake("13"))).Upgraded)
	return m
}

func TestMachinePingPong(t *testing.T) {
	m := openMachine(t, 0)

	ping := wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpPing, Masked: true, Payload: []byte("are you there")})
	step := m.Feed(ping)

	require.Len(t, step.Write, 1)
	f, _, err := wsframe.Decode(step.Write[0], 0)
	require.NoError(t, err)
	assert.Equal(t, wsframe.OpPong, f.Opcode)
	assert.Equal(t, "are you there", string(f.Payload))
	assert.False(t, f.Masked)
}

func TestMachineEchoesClose(t *testing.T) {
	m := openMachine(t, 0)

	closeFrame := wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpClose, Masked: true, Payload: wsframe.ClosePayload(wsframe.CloseGoingAway, "tab closed")})
	data := append(closeFrame, clientText("after close")...)
	step := m.Feed(data)

	assert.True(t, step.Close)
	assert.NoError(t, step.Err)
	assert.Empty(t, step.Messages)
	require.Len(t, step.Write, 1)
	f, _, err := wsframe.Decode(step.Write[0], 0)
	require.NoError(t, err)
	code, _ := wsframe.ParseClosePayload(f.Payload)
	assert.Equal(t, wsframe.CloseGoingAway, code)
	assert.Equal(t, StateClosing, m.State())

	m.Release()
	assert.Equal(t, StateClosed, m.State())
}

func TestMachineEchoCloseCodes(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    uint16
	}{
		{"empty payload", nil, wsframe.CloseNormal},
		{"normal", wsframe.ClosePayload(wsframe.CloseNormal, ""), wsframe.CloseNormal},
		{"application range", wsframe.ClosePayload(4001, "custom"), 4001},
		{"no status on the wire", wsframe.ClosePayload(1005, ""), wsframe.CloseProtocolError},
		{"abnormal closure", wsframe.ClosePayload(1006, ""), wsframe.CloseProtocolError},
		{"tls failure", wsframe.ClosePayload(1015, ""), wsframe.CloseProtocolError},
		{"below 1000", wsframe.ClosePayload(999, ""), wsframe.CloseProtocolError},
		{"unassigned", wsframe.ClosePayload(2000, ""), wsframe.CloseProtocolError},
		{"truncated code", []byte{0x03}, wsframe.CloseProtocolError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := openMachine(t, 0)

			step := m.Feed(wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpClose, Masked: true, Payload: tt.payload}))

			assert.True(t, step.Close)
			require.Len(t, step.Write, 1)
			f, _, err := wsframe.Decode(step.Write[0], 0)
			require.NoError(t, err)
			code, _ := wsframe.ParseClosePayload(f.Payload)
			assert.Equal(t, tt.want, code)
		})
	}
}

func TestMachineProtocolErrorCloses(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		code uint16
	}{
		{"reserved bits", []byte{0xC1, 0x80, 0, 0, 0, 0}, wsframe.CloseProtocolError},
		{"stray continuation", wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpContinuation, Masked: true, Payload: []byte("x")}), wsframe.CloseProtocolError},
		{"too large", clientText(strings.Repeat("x", 200)), wsframe.CloseMessageTooBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := openMachine(t, 100)

			step := m.Feed(tt.data)

			assert.True(t, step.Close)
			assert.Error(t, step.Err)
			require.Len(t, step.Write, 1)
			f, _, err := wsframe.Decode(step.Write[0], 0)
			require.NoError(t, err)
			code, _ := wsframe.ParseClosePayload(f.Payload)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestMachineShutdown(t *testing.T) {
	m := openMachine(t, 0)

	frame := m.Shutdown(wsframe.CloseGoingAway, "bye")
	require.NotNil(t, frame)
	assert.Equal(t, StateClosing, m.State())
	assert.Nil(t, m.Shutdown(wsframe.CloseGoingAway, "again"))

	// Text arriving after our close is dropped; the peer's close reply ends it.
	step := m.Feed(clientText("late"))
	assert.Empty(t, step.Messages)

	reply := wsframe.Encode(wsframe.Frame{Fin: true, Opcode: wsframe.OpClose, Masked: true, Payload: wsframe.ClosePayload(wsframe.CloseGoingAway, "")})
	step = m.Feed(reply)
	assert.True(t, step.Close)
	assert.Empty(t, step.Write)
}
