package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/s00inx/staticd/server/protocol"
)

// session is the arena for one accepted connection
// it lives from accept to close and is owned by exactly one worker at a time
type Session struct {
	Fd    int
	ID    uuid.UUID // for logs only
	Peer  string
	Start time.Time

	Buf    []byte // fixed scratch buffer for every read
	Parser *protocol.Parser
}

// reset session for put it to pool, buffers are kept
func (s *Session) Reset() {
	s.Fd = -1
	s.ID = uuid.Nil
	s.Peer = ""
	s.Start = time.Time{}
	s.Parser.Reset()
}

// pool for sessions
func (e *Engine) newSession() any {
	return &Session{
		Fd:     -1,
		Buf:    make([]byte, e.cfg.ReadBufferSize),
		Parser: protocol.NewParser(e.cfg.MaxHeaderBytes),
	}
}

func (e *Engine) getSession(fd int, peer string) *Session {
	s := e.sessionPool.Get().(*Session)
	s.Fd = fd
	s.ID = uuid.New()
	s.Peer = peer
	s.Start = time.Now()
	return s
}

func (e *Engine) putSession(s *Session) {
	s.Reset()
	e.sessionPool.Put(s)
}
