// accumulate raw request bytes until the header block is over
// only parser logic, no socket here
package protocol

import (
	"bytes"
)

var (
	crlfcrlf = []byte("\r\n\r\n")
	lflf     = []byte("\n\n")
	get      = []byte("GET")
)

// longest terminator minus one, this is how much of the old tail we rescan
const tail = len("\r\n\r\n") - 1

// Parser is an incremental accumulator for one connection.
// it may be fed 1..N chunks of any size before Complete becomes true,
// after that the buffer is frozen.
type Parser struct {
	buf  []byte
	max  int // 0 means no limit
	done bool
}

// max is the header size limit in bytes, <= 0 disables it
func NewParser(max int) *Parser {
	return &Parser{max: max}
}

// Feed appends p to the buffer and marks the request complete
// as soon as a blank line ("\r\n\r\n" or "\n\n") is buffered.
func (p *Parser) Feed(chunk []byte) error {
	if p.done || len(chunk) == 0 {
		return nil
	}

	// terminator can be split between two chunks so look back a bit
	from := len(p.buf) - tail
	if from < 0 {
		from = 0
	}
	p.buf = append(p.buf, chunk...)

	win := p.buf[from:]
	if bytes.Contains(win, crlfcrlf) || bytes.Contains(win, lflf) {
		p.done = true
		return nil
	}

	if p.max > 0 && len(p.buf) > p.max {
		return ErrHeaderTooLarge
	}
	return nil
}

func (p *Parser) Complete() bool {
	return p.done
}

// buffered bytes
func (p *Parser) Len() int {
	return len(p.buf)
}

// Target scans for GET, then the next '/', then the next ' '.
// the result keeps its leading '/' and refers to the parser buffer.
func (p *Parser) Target() ([]byte, error) {
	gp := bytes.Index(p.buf, get)
	if gp == -1 {
		return nil, ErrUnknownRequest
	}

	crs := gp + len(get)
	sl := bytes.IndexByte(p.buf[crs:], '/')
	if sl == -1 {
		return nil, ErrNoTarget
	}
	crs += sl

	sp := bytes.IndexByte(p.buf[crs:], ' ')
	if sp == -1 {
		return nil, ErrBrokenRequest
	}

	return p.buf[crs : crs+sp], nil
}

// reset parser before putting it back to pool, buffer memory is kept
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
	p.done = false
}
