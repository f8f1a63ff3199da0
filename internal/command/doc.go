// SPDX-License-Identifier: MPL-2.0

// Package command implements the rule engine that decides how the honeypot answers
// a command line.
//
// A Rule pairs a compiled pattern with a response template. Matching substitutes the
// numbered captures into the template ({{$1}}, {{$2}}, ...). A template starting with
// the live-execution directive (@docker <target> <body>) is run inside a sandbox
// container and its output is cached per rule for the lifetime of the process; any
// other template is returned verbatim.
//
// Rules are compiled once when a service is loaded, so an invalid pattern is a
// configuration fault rather than a runtime one. Cache state is the only state shared
// between sessions and is guarded by a mutex that is never held across a sandbox call.
package command
