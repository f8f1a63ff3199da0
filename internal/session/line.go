// SPDX-License-Identifier: MPL-2.0

package session

import "unicode/utf8"

const (
	keyInterrupt = 0x03
	keyEOF       = 0x04
	keyBackspace = 0x08
	keyEscape    = 0x1b
	keyDelete    = 0x7f
)

type (
	lineEvent int

	escState int

	// lineBuffer is a minimal line discipline: it accumulates printable input and
	// recognizes line terminators, erase, interrupt, end-of-file and escape
	// sequences (which are swallowed).
	lineBuffer struct {
		buf     []byte
		esc     escState
		afterCR bool
	}
)

const (
	evNone lineEvent = iota
	evEcho
	evErase
	evLine
	evInterrupt
	evEOF
)

const (
	escNone escState = iota
	escStart
	escCSI
)

// feed consumes one input byte and reports what the session should do with it.
func (l *lineBuffer) feed(b byte) lineEvent {
	switch l.esc {
	case escStart:
		if b == '[' || b == 'O' {
			l.esc = escCSI
		} else {
			l.esc = escNone
		}
		return evNone
	case escCSI:
		// Parameter and intermediate bytes continue the sequence; 0x40-0x7e ends it.
		if b >= 0x40 && b <= 0x7e {
			l.esc = escNone
		}
		return evNone
	}

	afterCR := l.afterCR
	l.afterCR = false

	switch b {
	case '\r':
		l.afterCR = true
		return evLine
	case '\n':
		if afterCR {
			return evNone
		}
		return evLine
	case keyBackspace, keyDelete:
		if len(l.buf) == 0 {
			return evNone
		}
		_, size := utf8.DecodeLastRune(l.buf)
		l.buf = l.buf[:len(l.buf)-size]
		return evErase
	case keyInterrupt:
		l.buf = l.buf[:0]
		return evInterrupt
	case keyEOF:
		if len(l.buf) == 0 {
			return evEOF
		}
		return evNone
	case keyEscape:
		l.esc = escStart
		return evNone
	}

	if b < 0x20 && b != '\t' {
		return evNone
	}
	l.buf = append(l.buf, b)
	return evEcho
}

// take returns the accumulated line and resets the buffer.
func (l *lineBuffer) take() string {
	s := string(l.buf)
	l.buf = l.buf[:0]
	return s
}
