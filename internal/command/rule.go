// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultExecTimeout bounds a single sandbox call when no timeout is configured.
const DefaultExecTimeout = 30 * time.Second

var errNoSandbox = errors.New("no sandbox configured")

type (
	// Option configures how rules are compiled.
	Option func(*options)

	options struct {
		sandbox  Sandbox
		timeout  time.Duration
		observer Observer
	}

	// Rule is a compiled pattern and response template. It is immutable after
	// Compile except for its response cache.
	Rule struct {
		index    int
		parser   string
		handler  string
		pattern  *regexp.Regexp
		live     bool
		cache    *Cache
		inflight singleflight.Group
		opts     options
	}

	// Response is the output of a matched rule.
	Response struct {
		// Output is the text to send back to the peer.
		Output string
		// Live is true when the output came from the sandbox (fresh or cached).
		Live bool
		// Cached is true when the output was served from the response cache.
		Cached bool
	}
)

// WithSandbox sets the sandbox used for live-execution templates.
func WithSandbox(s Sandbox) Option {
	return func(o *options) {
		o.sandbox = s
	}
}

// WithExecTimeout bounds every sandbox call. Zero keeps DefaultExecTimeout.
func WithExecTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithObserver receives cache events, typically for metrics.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultExecTimeout, observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Compile builds a rule. index is only used to identify the rule in errors.
func Compile(index int, parser, handler string, opts ...Option) (*Rule, error) {
	pattern, err := regexp.Compile(parser)
	if err != nil {
		return nil, &RuleError{Index: index, Parser: parser, Reason: "invalid pattern", Cause: err}
	}

	r := &Rule{
		index:   index,
		parser:  parser,
		handler: handler,
		pattern: pattern,
		live:    IsDirective(handler),
		cache:   newCache(),
		opts:    buildOptions(opts),
	}

	if r.live {
		d, err := ParseDirective(handler)
		if err != nil {
			return nil, &RuleError{Index: index, Parser: parser, Reason: "malformed handler", Cause: err}
		}
		if err := lintBody(d.Body); err != nil {
			return nil, &RuleError{Index: index, Parser: parser, Reason: "handler is not valid shell", Cause: err}
		}
	}

	return r, nil
}

// Parser returns the rule's pattern source.
func (r *Rule) Parser() string { return r.parser }

// Handler returns the rule's response template.
func (r *Rule) Handler() string { return r.handler }

// Live reports whether the rule's template is a live-execution directive.
func (r *Rule) Live() bool { return r.live }

// CacheLen returns the number of cached live outputs.
func (r *Rule) CacheLen() int { return r.cache.Len() }

// Substitute matches input and returns the template with captures applied.
// ok is false when the input does not match.
func (r *Rule) Substitute(input string) (string, bool) {
	loc := r.pattern.FindStringSubmatchIndex(input)
	if loc == nil {
		return "", false
	}

	out := r.handler
	for n := 1; n <= r.pattern.NumSubexp(); n++ {
		start, end := loc[2*n], loc[2*n+1]
		if start < 0 {
			// Group did not participate: the token stays visible.
			continue
		}
		out = strings.ReplaceAll(out, token(n), input[start:end])
	}
	return out, true
}

func token(n int) string {
	return "{{$" + strconv.Itoa(n) + "}}"
}

// Respond matches input against the rule and produces its response.
// matched is false when the input does not match; err is an *ExecError when a
// live execution fails.
func (r *Rule) Respond(ctx context.Context, input string) (resp Response, matched bool, err error) {
	key, ok := r.Substitute(input)
	if !ok {
		return Response{}, false, nil
	}

	if out, hit := r.cache.Get(key); hit {
		r.opts.observer.CacheLookup(true)
		return Response{Output: out, Live: true, Cached: true}, true, nil
	}

	if !IsDirective(key) {
		return Response{Output: key}, true, nil
	}
	r.opts.observer.CacheLookup(false)

	out, err := r.execute(ctx, key)
	if err != nil {
		return Response{}, true, err
	}
	return Response{Output: out, Live: true}, true, nil
}

// execute runs key in the sandbox. Concurrent callers for the same key share one
// sandbox call; a caller whose context ends stops waiting without cancelling it.
func (r *Rule) execute(ctx context.Context, key string) (string, error) {
	ch := r.inflight.DoChan(key, func() (any, error) {
		if out, hit := r.cache.Get(key); hit {
			return out, nil
		}
		out, err := r.run(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		return r.cache.Put(key, out), nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &ExecError{Cause: fmt.Errorf("abandoned: %w", ctx.Err())}
	}
}

func (r *Rule) run(ctx context.Context, key string) (string, error) {
	d, err := ParseDirective(key)
	if err != nil {
		// Substitution emptied a field, e.g. an empty capture as target.
		return "", &ExecError{Cause: err}
	}
	if r.opts.sandbox == nil {
		return "", &ExecError{Target: d.Target, Command: d.Body, Cause: errNoSandbox}
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	res, err := r.opts.sandbox.Exec(ctx, d.Target, d.Body)
	out := NormalizeOutput(res.Stderr, res.Stdout)
	if err != nil {
		return "", &ExecError{Target: d.Target, Command: d.Body, ExitCode: res.ExitCode, Output: out, Cause: err}
	}
	if res.ExitCode != 0 {
		return "", &ExecError{Target: d.Target, Command: d.Body, ExitCode: res.ExitCode, Output: out}
	}
	return out, nil
}
