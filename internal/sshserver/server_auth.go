// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"fmt"

	"github.com/charmbracelet/ssh"
	gossh "golang.org/x/crypto/ssh"
)

const (
	methodPassword            = "password"
	methodPublicKey           = "publickey"
	methodKeyboardInteractive = "keyboard-interactive"
)

// credentialKey stores the accepted credential on the connection context.
type credentialKey struct{}

// credential is what a peer authenticated with.
type credential struct {
	method string
	secret string
}

func (c credential) String() string {
	return fmt.Sprintf("auth method=%s secret=%q", c.method, c.secret)
}

func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	return s.authenticate(ctx, methodPassword, password, s.settings.Allows(ctx.User(), password))
}

// publicKeyHandler logs the key fingerprint. Keys are rejected unless
// accept_keys is set, so clients fall back to a password.
func (s *Server) publicKeyHandler(ctx ssh.Context, key ssh.PublicKey) bool {
	return s.authenticate(ctx, methodPublicKey, gossh.FingerprintSHA256(key), s.settings.AcceptKeys)
}

// keyboardInteractiveHandler asks for a password the way PAM-backed servers do.
func (s *Server) keyboardInteractiveHandler(ctx ssh.Context, challenge gossh.KeyboardInteractiveChallenge) bool {
	answers, err := challenge("", "", []string{"Password: "}, []bool{false})
	if err != nil || len(answers) != 1 {
		s.logger.Debug("keyboard-interactive aborted", "remote", ctx.RemoteAddr(), "user", ctx.User(), "err", err)
		return false
	}
	return s.authenticate(ctx, methodKeyboardInteractive, answers[0], s.settings.Allows(ctx.User(), answers[0]))
}

func (s *Server) authenticate(ctx ssh.Context, method, secret string, accepted bool) bool {
	s.logger.Info("auth attempt",
		"method", method,
		"remote", ctx.RemoteAddr(),
		"user", ctx.User(),
		"secret", secret,
		"client", ctx.ClientVersion(),
		"accepted", accepted,
	)
	s.deps.Auth.AuthAttempt(s.svc.Name, method, accepted)
	if accepted {
		ctx.SetValue(credentialKey{}, credential{method: method, secret: secret})
	}
	return accepted
}

func credentialFrom(ctx ssh.Context) (credential, bool) {
	c, ok := ctx.Value(credentialKey{}).(credential)
	return c, ok
}
