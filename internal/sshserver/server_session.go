// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"time"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/google/uuid"

	"github.com/lureworks/lure/internal/record"
	"github.com/lureworks/lure/internal/session"
)

const readBufferSize = 4096

// channel adapts an ssh.Session to session.Channel.
type channel struct {
	sess ssh.Session
}

func (c channel) Write(p []byte) (int, error) {
	return c.sess.Write(p)
}

// Exit sends the exit status and closes the channel.
func (c channel) Exit(code int) error {
	return c.sess.Exit(code)
}

// sessionMiddleware turns each ssh session into a session.Session fed with
// the channel events of the connection.
func (s *Server) sessionMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			s.handle(sess)
			next(sess)
		}
	}
}

func (s *Server) handle(sess ssh.Session) {
	ctx := sess.Context()
	info := session.Info{
		ID:         uuid.NewString(),
		Service:    s.svc.Name,
		RemoteAddr: sess.RemoteAddr().String(),
		User:       sess.User(),
	}
	sn := session.New(info, s.deps.Rules,
		session.WithPrompt(s.settings.Prompt),
		session.WithNotFound(s.settings.NotFound),
		session.WithExecFailed(s.settings.ExecFailed),
		session.WithRecorder(s.deps.Recorder),
		session.WithLogger(s.logger),
		session.WithObserver(s.deps.Sessions),
	)
	defer sn.OnDisconnect()

	sn.OnChannelOpen(channel{sess: sess})
	s.recordConnection(sess, info.ID)

	if _, winCh, isPty := sess.Pty(); isPty {
		// Window changes are not rendered, but the request loop blocks
		// until they are consumed.
		go func() {
			for range winCh {
			}
		}()
		sn.OnPtyRequest()
	}

	if cmd := sess.RawCommand(); cmd != "" {
		sn.OnExecRequest(ctx, cmd)
		return
	}

	sn.OnShellRequest()
	buf := make([]byte, readBufferSize)
	for {
		n, err := sess.Read(buf)
		if n > 0 && !sn.OnData(ctx, buf[:n]) {
			return
		}
		if err != nil {
			sn.OnChannelClose()
			return
		}
	}
}

// recordConnection adds the client identity and the accepted credential to
// the transcript.
func (s *Server) recordConnection(sess ssh.Session, id string) {
	ctx := sess.Context()
	meta := "client version=" + ctx.ClientVersion()
	if pty, _, ok := sess.Pty(); ok {
		meta += " term=" + pty.Term
	}
	if err := s.deps.Recorder.Record(id, record.Meta, time.Now(), []byte(meta)); err != nil {
		s.logger.Warn("record failed", "session", id, "err", err)
	}
	if c, ok := credentialFrom(ctx); ok {
		if err := s.deps.Recorder.Record(id, record.Meta, time.Now(), []byte(c.String())); err != nil {
			s.logger.Warn("record failed", "session", id, "err", err)
		}
	}
}
