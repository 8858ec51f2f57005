package wsframe

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"ai-intent-chat-be/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte('a' + i%26)
	}
	return p
}

func TestRoundTripAllLengthEncodings(t *testing.T) {
	tests := []struct {
		size       int
		headerSize int
	}{
		{0, 2},
		{125, 2},
		{126, 4},
		{65535, 4},
		{65536, 10},
		{70000, 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d bytes", tt.size), func(t *testing.T) {
			payload := payloadOf(tt.size)
			wire := Text(payload)

			assert.Equal(t, byte(0x81), wire[0])
			assert.Equal(t, tt.headerSize+tt.size, len(wire))

			f, n, err := Decode(wire, 0)
			require.NoError(t, err)
			assert.Equal(t, len(wire), n)
			assert.True(t, f.Fin)
			assert.Equal(t, OpText, f.Opcode)
			assert.True(t, bytes.Equal(payload, f.Payload))
		})
	}
}

func TestMaskedRoundTrip(t *testing.T) {
	payload := []byte(`{"message":"hello there"}`)
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	wire := Encode(Frame{Fin: true, Opcode: OpText, Masked: true, MaskKey: key, Payload: payload})

	assert.NotContains(t, string(wire), "hello")

	f, _, err := Decode(wire, 0)
	require.NoError(t, err)
	assert.True(t, f.Masked)
	assert.Equal(t, payload, f.Payload)
}

func TestRFCMaskedHelloExample(t *testing.T) {
	// RFC 6455 section 5.7: a single-frame masked text message containing "Hello".
	wire := []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}
	f, n, err := Decode(wire, 0)
	require.NoError(t, err)
	assert.Equal(t, len(wire), n)
	assert.Equal(t, "Hello", string(f.Payload))
}

func TestDecodeIncomplete(t *testing.T) {
	wire := Text(payloadOf(70000))
	for _, cut := range []int{0, 1, 2, 5, 9, 10, 500, len(wire) - 1} {
		_, n, err := Decode(wire[:cut], 0)
		assert.ErrorIs(t, err, ErrIncomplete, "cut at %d", cut)
		assert.Zero(t, n)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte{0x81 | 0x40, 0x00}, 0)
	assert.ErrorIs(t, err, ErrReservedBits)

	_, _, err = Decode([]byte{0x83, 0x00}, 0)
	assert.ErrorIs(t, err, ErrUnknownOpcode)

	_, _, err = Decode([]byte{0x09, 0x00}, 0) // ping without FIN
	assert.ErrorIs(t, err, ErrBadControlFrame)

	_, _, err = Decode(Text(payloadOf(200)), 100)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestDecoderReassemblesAcrossReads(t *testing.T) {
	first := Encode(Frame{Fin: false, Opcode: OpText, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte("hello ")})
	ping := Encode(Frame{Fin: true, Opcode: OpPing, Masked: true, MaskKey: [4]byte{9, 9, 9, 9}, Payload: []byte("p")})
	last := Encode(Frame{Fin: true, Opcode: OpContinuation, Masked: true, MaskKey: [4]byte{5, 6, 7, 8}, Payload: []byte("there")})
	stream := append(append(append([]byte{}, first...), ping...), last...)

	d := NewDecoder(0)
	var got []Message
	for i := 0; i < len(stream); i += 3 {
		end := min(i+3, len(stream))
		msgs, err := d.Feed(stream[i:end])
		require.NoError(t, err)
		got = append(got, msgs...)
	}

	require.Len(t, got, 2)
	assert.Equal(t, Message{Opcode: OpPing, Payload: []byte("p")}, got[0])
	assert.Equal(t, Message{Opcode: OpText, Payload: []byte("hello there")}, got[1])
	assert.Zero(t, d.Buffered())
}

func TestDecoderRejectsStrayContinuation(t *testing.T) {
	_, err := NewDecoder(0).Feed(Encode(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("x")}))
	assert.ErrorIs(t, err, ErrBadContinuation)
}

func TestDecoderLimitsReassembledSize(t *testing.T) {
	d := NewDecoder(8)
	_, err := d.Feed(Encode(Frame{Fin: false, Opcode: OpText, Payload: []byte("12345")}))
	require.NoError(t, err)
	_, err = d.Feed(Encode(Frame{Fin: true, Opcode: OpContinuation, Payload: []byte("6789")}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestClosePayload(t *testing.T) {
	code, reason := ParseClosePayload(ClosePayload(CloseGoingAway, "bye"))
	assert.Equal(t, CloseGoingAway, code)
	assert.Equal(t, "bye", reason)

	code, _ = ParseClosePayload(nil)
	assert.Equal(t, uint16(1005), code)

	frame := CloseFrame(CloseNormal, "")
	assert.Equal(t, []byte{0x88, 0x02, 0x03, 0xe8}, frame)
}

func TestValidCloseCode(t *testing.T) {
	for _, code := range []uint16{1000, 1001, 1002, 1003, 1007, 1011, 1014, 3000, 4999} {
		assert.True(t, ValidCloseCode(code), "code %d", code)
	}
	for _, code := range []uint16{0, 999, 1004, 1005, 1006, 1015, 1016, 2999, 5000} {
		assert.False(t, ValidCloseCode(code), "code %d", code)
	}
}

func TestAcceptKeyRFCExample(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func upgradeRequest(version string) string {
	return "GET /chat?sessionId=abc HTTP/1.1\r\n" +
		"Host: localhost:8081\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: keep-alive, Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: " + version + "\r\n\r\n"
}

func TestNegotiateAccepts(t *testing.T) {
	head := []byte(upgradeRequest("13"))
	assert.Equal(t, len(head), HeaderEnd(append(head, 0x81)))

	req, err := ParseRequest(head)
	require.NoError(t, err)
	assert.Equal(t, "abc", req.URL.Query().Get("sessionId"))

	resp, err := Negotiate(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.Status)

	raw := string(resp.Bytes())
	assert.True(t, strings.HasPrefix(raw, "HTTP/1.1 101 Switching Protocols\r\n"))
	assert.Contains(t, raw, "Sec-Websocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\n"))
}

func TestNegotiateRejects(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
	}{
		{"unsupported version", upgradeRequest("8"), http.StatusUpgradeRequired},
		{"missing version", strings.Replace(upgradeRequest("13"), "Sec-WebSocket-Version: 13\r\n", "", 1), http.StatusUpgradeRequired},
		{"post", strings.Replace(upgradeRequest("13"), "GET", "POST", 1), http.StatusMethodNotAllowed},
		{"no upgrade header", strings.Replace(upgradeRequest("13"), "Upgrade: websocket\r\n", "", 1), http.StatusBadRequest},
		{"short key", strings.Replace(upgradeRequest("13"), "dGhlIHNhbXBsZSBub25jZQ==", "c2hvcnQ=", 1), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			require.NoError(t, err)

			resp, err := Negotiate(req)
			assert.ErrorIs(t, err, apperror.ErrHandshakeRejected)
			assert.Equal(t, tt.status, resp.Status)
			if tt.status == http.StatusUpgradeRequired {
				assert.Equal(t, "13", resp.Header.Get("Sec-WebSocket-Version"))
			}
		})
	}
}

func TestParseRequestGarbage(t *testing.T) {
	_, err := ParseRequest([]byte("\x16\x03\x01 not http\r\n\r\n"))
	assert.ErrorIs(t, err, apperror.ErrHandshakeRejected)
}
