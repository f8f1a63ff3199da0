// SPDX-License-Identifier: MPL-2.0

package command

import (
	"errors"
	"strings"
	"unicode"

	"mvdan.cc/sh/v3/syntax"
)

// DirectivePrefix marks a template whose output comes from the sandbox.
const DirectivePrefix = "@docker "

var errMalformedDirective = errors.New("live-execution directive needs a target and a command")

// Directive is a parsed live-execution template.
type Directive struct {
	// Target identifies the sandbox container.
	Target string
	// Body is the command run by the target's shell. It may contain whitespace.
	Body string
}

// IsDirective reports whether s starts with the live-execution prefix.
func IsDirective(s string) bool {
	return strings.HasPrefix(s, DirectivePrefix)
}

// ParseDirective splits a directive into its target and body. Only the first two
// whitespace boundaries separate fields; everything after the target is the body.
func ParseDirective(s string) (Directive, error) {
	if !IsDirective(s) {
		return Directive{}, errMalformedDirective
	}
	rest := strings.TrimLeftFunc(s[len(DirectivePrefix):], unicode.IsSpace)
	target, body, ok := cutSpace(rest)
	if !ok || target == "" {
		return Directive{}, errMalformedDirective
	}
	body = strings.TrimLeftFunc(body, unicode.IsSpace)
	if body == "" {
		return Directive{}, errMalformedDirective
	}
	return Directive{Target: target, Body: body}, nil
}

// cutSpace slices s around the first whitespace rune.
func cutSpace(s string) (before, after string, found bool) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i:], true
}

// lintBody checks that a directive body is valid shell. Capture tokens are plain
// words to the parser so the unsubstituted template can be checked at load time.
func lintBody(body string) error {
	_, err := syntax.NewParser().Parse(strings.NewReader(body), "")
	return err
}

// NormalizeOutput joins trimmed stderr and stdout (in that order, no separator) and
// converts line feeds to CRLF. Existing CRLF pairs are left intact.
func NormalizeOutput(stderr, stdout []byte) string {
	out := strings.TrimSpace(string(stderr)) + strings.TrimSpace(string(stdout))
	return NormalizeLineEndings(out)
}

// NormalizeLineEndings converts bare LF to CRLF.
func NormalizeLineEndings(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
