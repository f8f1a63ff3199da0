// SPDX-License-Identifier: MPL-2.0

// Package watch reports changes to the files of a directory tree. Events are
// debounced so that an editor's write-and-rename fires one callback with every
// changed path.
package watch
