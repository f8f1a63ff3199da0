// SPDX-License-Identifier: MPL-2.0

package command

import (
	"context"
	"errors"
)

type (
	// Spec is the configuration form of a rule.
	Spec struct {
		Parser  string
		Handler string
	}

	// Set is the ordered rule list of one service. It is shared read-only by every
	// session of that service; only the per-rule caches mutate.
	Set struct {
		rules []*Rule
	}

	// Result is the outcome of a dispatch.
	Result struct {
		Response
		// Matched is false when no rule matched the input.
		Matched bool
		// Rule is the index of the matching rule, or -1.
		Rule int
	}
)

// NewSet compiles all specs. Every invalid rule is reported; none is skipped.
func NewSet(specs []Spec, opts ...Option) (*Set, error) {
	set := &Set{rules: make([]*Rule, 0, len(specs))}
	var errs []error
	for i, spec := range specs {
		r, err := Compile(i, spec.Parser, spec.Handler, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.rules = append(set.rules, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Rules returns the compiled rules in order.
func (s *Set) Rules() []*Rule { return s.rules }

// Dispatch returns the response of the first rule matching input.
// A Result with Matched == false is the "no rule matched" signal, distinct from a
// match whose output is empty.
func (s *Set) Dispatch(ctx context.Context, input string) (Result, error) {
	for i, r := range s.rules {
		resp, ok, err := r.Respond(ctx, input)
		if !ok {
			continue
		}
		return Result{Response: resp, Matched: true, Rule: i}, err
	}
	return Result{Rule: -1}, nil
}
