package link

import (
	"io"

	"github.com/openai/snap-o-link/session"
)

func (s *Server) newSession(id uint64, conn io.ReadWriteCloser) sessionHandle {
	return session.New(id, conn, s.registry, s.cfg.Session, s.hello, s.appIcon, s.removeSession, s.obs)
}
