// SPDX-License-Identifier: MPL-2.0

package serverbase

// Option configures a Base instance.
type Option func(*Base)

// WithName names the server in lifecycle errors.
func WithName(name string) Option {
	return func(b *Base) {
		b.name = name
	}
}

// WithErrorChannel sets a custom error channel buffer size.
// Default buffer size is 1.
func WithErrorChannel(size int) Option {
	return func(b *Base) {
		b.errCh = make(chan error, max(size, 0))
	}
}
