package wsframe

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"ai-intent-chat-be/pkg/apperror"
)

const (
	// SupportedVersion is the only Sec-WebSocket-Version accepted.
	SupportedVersion = "13"

	acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
)

var headerTerminator = []byte("\r\n\r\n")

// HeaderEnd returns the length of the complete request head in buf
// (including the blank line), or -1 while it is still incomplete.
func HeaderEnd(buf []byte) int {
	i := bytes.Index(buf, headerTerminator)
	if i < 0 {
		return -1
	}
	return i + len(headerTerminator)
}

// AcceptKey computes Sec-WebSocket-Accept for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Response is a raw HTTP/1.1 response written before framed mode starts.
type Response struct {
	Status int
	Header http.Header
}

// Bytes renders the status line, sorted headers and the blank line.
func (r Response) Bytes() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, http.StatusText(r.Status))

	keys := make([]string, 0, len(r.Header))
	for k := range r.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, strings.Join(r.Header[k], ", "))
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// ParseRequest parses a complete request head.
func ParseRequest(head []byte) (*http.Request, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(head)))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindHandshakeRejected, "wsframe.ParseRequest", err)
	}
	return req, nil
}

// Negotiate validates an upgrade request. On success it returns the 101
// response. On failure it returns the rejection response to write and a
// HandshakeRejected error: 426 for an unsupported version, 405 for a method
// other than GET, 400 for anything else.
func Negotiate(req *http.Request) (Response, error) {
	reject := func(status int, reason string) (Response, error) {
		resp := Response{Status: status, Header: http.Header{"Connection": {"close"}}}
		switch status {
		case http.StatusUpgradeRequired:
			resp.Header.Set("Sec-WebSocket-Version", SupportedVersion)
		case http.StatusMethodNotAllowed:
			resp.Header.Set("Allow", http.MethodGet)
		}
		return resp, apperror.New(apperror.KindHandshakeRejected, "wsframe.Negotiate", reason)
	}

	if req.Method != http.MethodGet {
		return reject(http.StatusMethodNotAllowed, "method "+req.Method+" not allowed")
	}
	if !req.ProtoAtLeast(1, 1) {
		return reject(http.StatusBadRequest, "HTTP/1.1 or newer required")
	}
	if req.Host == "" {
		return reject(http.StatusBadRequest, "missing Host header")
	}
	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return reject(http.StatusBadRequest, "missing Upgrade: websocket")
	}
	if !headerContainsToken(req.Header, "Connection", "upgrade") {
		return reject(http.StatusBadRequest, "missing Connection: Upgrade")
	}

	key := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Key"))
	if decoded, err := base64.StdEncoding.DecodeString(key); err != nil || len(decoded) != 16 {
		return reject(http.StatusBadRequest, "invalid Sec-WebSocket-Key")
	}

	if v := strings.TrimSpace(req.Header.Get("Sec-WebSocket-Version")); v != SupportedVersion {
		return reject(http.StatusUpgradeRequired, fmt.Sprintf("unsupported version %q", v))
	}

	return Response{
		Status: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":              {"websocket"},
			"Connection":           {"Upgrade"},
			"Sec-Websocket-Accept": {AcceptKey(key)},
		},
	}, nil
}

// RejectBadRequest is the response for a head that could not be parsed.
func RejectBadRequest() Response {
	return Response{Status: http.StatusBadRequest, Header: http.Header{"Connection": {"close"}}}
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
