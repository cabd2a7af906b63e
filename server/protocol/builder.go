package protocol

import (
	"bytes"
	"os"
)

// ServerName goes to the Server header of every found file
const ServerName = "HTTPServer3K/0.1.0 (Unix)"

// lookup table for status codes the server sends, anything else is a 500
// i use flat list instead of map bc codes is fixed
var statusTable = [501][]byte{
	200: []byte("200 OK"),
	404: []byte("404 Not Found"),
	500: []byte("500 Internal Server Error"),
}

// Header is a response header, key and val are raw bytes
type Header struct {
	Key, Val []byte
}

// for fast access
var (
	proto = []byte("HTTP/1.1 ")
	crlf  = []byte("\r\n")
	colon = []byte(": ")

	hContentType   = []byte("Content-Type")
	hContentLength = []byte("Content-Length")
	hServer        = []byte("Server")

	htmlUTF8   = []byte("text/html; charset=UTF-8")
	serverName = []byte(ServerName)
)

// fixed 404, Content-Length is 49 on the wire whatever the body says
var notFound = []byte("HTTP/1.1 404 Not Found\r\n" +
	"Content-Type: text/html\r\n" +
	"Content-Length: 49\r\n" +
	"\r\n" +
	"<html><body><h1>404 Not Found</h1></body></html>\r\n")

// helper func to copy int to pre-allocated buf with zero-alloc, buf is dst[n:]
// n should be uint bc / 10 (and % 10) for uints is faster
func IntToBuf(buf []byte, n uint) int {
	if n == 0 {
		buf[0] = '0'
		return 1
	}

	var tmp [20]byte
	i := len(tmp)
	for n > 0 {
		i--
		tmp[i] = byte(n%10) + '0'
		n /= 10
	}
	return copy(buf, tmp[i:])
}

// status line, headers and body in one slice of exact size
func BuildResp(code int, headers []Header, body []byte) []byte {
	st := statusTable[500]
	if code >= 100 && code < len(statusTable) && statusTable[code] != nil {
		st = statusTable[code]
	}

	size := len(proto) + len(st) + 2*len(crlf) + len(body)
	for _, h := range headers {
		size += len(h.Key) + len(colon) + len(h.Val) + len(crlf)
	}

	dst := make([]byte, size)
	n := copy(dst, proto)
	n += copy(dst[n:], st)
	n += copy(dst[n:], crlf)

	for _, h := range headers {
		n += copy(dst[n:], h.Key)
		n += copy(dst[n:], colon)
		n += copy(dst[n:], h.Val)
		n += copy(dst[n:], crlf)
	}

	n += copy(dst[n:], crlf)
	copy(dst[n:], body)

	return dst
}

// FileResponse reads the whole file and wraps it in a 200,
// anything that can't be read becomes the fixed 404.
func FileResponse(path string) []byte {
	body, err := os.ReadFile(path)
	if err != nil {
		return NotFound()
	}

	var lenbuf [20]byte
	ln := IntToBuf(lenbuf[:], uint(len(body)))

	return BuildResp(200, []Header{
		{Key: hContentType, Val: htmlUTF8},
		{Key: hContentLength, Val: lenbuf[:ln]},
		{Key: hServer, Val: serverName},
	}, body)
}

// copy of the fixed 404 so callers can't touch the shared one
func NotFound() []byte {
	return bytes.Clone(notFound)
}

func IsNotFound(resp []byte) bool {
	return bytes.Equal(resp, notFound)
}
