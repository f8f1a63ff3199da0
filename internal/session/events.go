// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/lureworks/lure/internal/command"
	"github.com/lureworks/lure/internal/record"
)

// OnChannelOpen binds the session to its output channel. Only the first channel
// is accepted; no output is produced yet.
func (s *Session) OnChannelOpen(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic("channel open")

	if s.ch != nil || s.mode == ModeClosed {
		return
	}
	s.ch = ch
	s.started = s.now()
	s.observer.SessionStarted(s.info.Service)
	s.record(record.Meta, fmt.Sprintf("open remote=%s user=%s", s.info.RemoteAddr, s.info.User))
	s.logger.Info("session opened", "remote", s.info.RemoteAddr, "user", s.info.User)
}

// OnPtyRequest enables terminal behaviour (echo and line editing) for the
// interactive mode.
func (s *Session) OnPtyRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode == ModeIdle || s.mode == ModeInteractive {
		s.pty = true
	}
}

// OnExecRequest dispatches a single command, writes its output, reports the exit
// status and closes the channel.
func (s *Session) OnExecRequest(ctx context.Context, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic("exec request")

	if s.ch == nil || s.mode != ModeIdle {
		return
	}
	s.mode = ModeExec
	s.record(record.Inbound, line)

	out, code := s.respond(ctx, strings.TrimSpace(line))
	if !s.write(out) {
		return
	}
	s.end(code)
}

// OnShellRequest switches the session to interactive mode and shows the prompt.
func (s *Session) OnShellRequest() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic("shell request")

	if s.ch == nil || s.mode != ModeIdle {
		return
	}
	s.mode = ModeInteractive
	s.writeRaw(s.prompt)
}

// OnData feeds peer input to the interactive line discipline. Complete lines are
// dispatched in order before the next byte is read. It returns false once the
// session has ended.
func (s *Session) OnData(ctx context.Context, data []byte) (open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { open = s.mode != ModeClosed }()
	defer s.recoverPanic("data")

	if s.mode != ModeInteractive {
		return
	}

	var echo []byte
	flush := func() {
		if len(echo) > 0 {
			s.writeRaw(string(echo))
			echo = echo[:0]
		}
	}

	for _, b := range data {
		if s.mode != ModeInteractive {
			break
		}
		switch s.line.feed(b) {
		case evEcho:
			if s.pty {
				echo = append(echo, b)
			}
		case evErase:
			if s.pty {
				echo = append(echo, '\b', ' ', '\b')
			}
		case evInterrupt:
			if s.pty {
				echo = append(echo, "^C\r\n"...)
			}
			echo = append(echo, s.prompt...)
		case evEOF:
			if s.pty {
				echo = append(echo, "logout\r\n"...)
			}
			flush()
			s.end(0)
		case evLine:
			if s.pty {
				echo = append(echo, '\r', '\n')
			}
			flush()
			s.handleLine(ctx, s.line.take())
		}
	}
	if s.mode == ModeInteractive {
		flush()
	}
	return
}

// OnChannelClose ends the session after the peer closed the channel.
func (s *Session) OnChannelClose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic("channel close")

	if s.mode != ModeClosed {
		s.finish("channel closed")
	}
}

// OnDisconnect ends the session after the transport went away.
func (s *Session) OnDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recoverPanic("disconnect")

	if s.mode != ModeClosed {
		s.finish("disconnected")
	}
}

func (s *Session) handleLine(ctx context.Context, line string) {
	s.record(record.Inbound, line)

	switch cmd := strings.TrimSpace(line); cmd {
	case "":
	case "exit", "logout":
		s.end(0)
		return
	default:
		out, _ := s.respond(ctx, cmd)
		if !s.write(out) {
			return
		}
	}
	s.writeRaw(s.prompt)
}

// respond dispatches line and returns the framed output with its exit status.
func (s *Session) respond(ctx context.Context, line string) (string, int) {
	res, err := s.rules.Dispatch(ctx, line)
	switch {
	case err != nil:
		s.observer.Dispatched(s.info.Service, OutcomeFailed)
		var execErr *command.ExecError
		if errors.As(err, &execErr) {
			s.logger.Warn("live execution failed", "rule", res.Rule, "line", line, "err", err)
			if execErr.Output != "" {
				return frame(execErr.Output), execErr.StatusCode()
			}
			return frame(fmt.Sprintf(s.failed, commandName(line))), execErr.StatusCode()
		}
		s.logger.Error("dispatch failed", "line", line, "err", err)
		return frame(fmt.Sprintf(s.failed, commandName(line))), 1
	case !res.Matched:
		s.observer.Dispatched(s.info.Service, OutcomeUnmatched)
		s.logger.Debug("no rule matched", "line", line)
		return frame(fmt.Sprintf(s.notFound, commandName(line))), ExitNotFound
	default:
		s.observer.Dispatched(s.info.Service, OutcomeMatched)
		s.logger.Debug("rule matched", "rule", res.Rule, "line", line, "live", res.Live, "cached", res.Cached)
		return frame(res.Output), 0
	}
}

// write sends a response and mirrors it to the transcript. It returns false if
// the channel failed, in which case the session is over.
func (s *Session) write(out string) bool {
	if out == "" {
		return true
	}
	s.record(record.Outbound, out)
	return s.writeRaw(out)
}

func (s *Session) writeRaw(out string) bool {
	if out == "" {
		return true
	}
	if _, err := s.ch.Write([]byte(out)); err != nil {
		s.logger.Debug("write failed", "err", err)
		s.finish("write failed")
		return false
	}
	return true
}

// end reports the exit status and closes the channel.
func (s *Session) end(code int) {
	if s.mode == ModeClosed {
		return
	}
	if err := s.ch.Exit(code); err != nil {
		s.logger.Debug("exit status not delivered", "code", code, "err", err)
	}
	s.finish(fmt.Sprintf("exit %d", code))
}

func (s *Session) finish(reason string) {
	if s.mode == ModeClosed {
		return
	}
	s.mode = ModeClosed
	if s.ch == nil {
		return
	}
	lifetime := s.now().Sub(s.started)
	s.record(record.Meta, "close "+reason)
	if err := s.recorder.Close(s.info.ID); err != nil {
		s.logger.Error("closing transcript failed", "err", err)
	}
	s.observer.SessionEnded(s.info.Service, lifetime)
	s.logger.Info("session closed", "reason", reason, "duration", lifetime)
}

func (s *Session) record(dir record.Direction, data string) {
	if err := s.recorder.Record(s.info.ID, dir, s.now(), []byte(data)); err != nil {
		s.logger.Error("recording failed", "direction", dir, "err", err)
	}
}

// recoverPanic confines a panic to this session: it is logged and the session
// is ended with a failure status.
func (s *Session) recoverPanic(event string) {
	r := recover()
	if r == nil {
		return
	}
	s.logger.Error("session panic", "event", event, "panic", r, "stack", string(debug.Stack()))
	if s.ch == nil {
		s.mode = ModeClosed
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.mode = ModeClosed
		}
	}()
	s.end(1)
}

// frame normalizes line endings and terminates non-empty output with CRLF.
func frame(out string) string {
	if out == "" {
		return ""
	}
	out = command.NormalizeLineEndings(out)
	if !strings.HasSuffix(out, "\r\n") {
		out += "\r\n"
	}
	return out
}

func commandName(line string) string {
	if fields := strings.Fields(line); len(fields) > 0 {
		return fields[0]
	}
	return line
}
