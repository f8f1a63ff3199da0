// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	ServicesNotFoundId
	ServiceInvalidId
	RuleInvalidId
	UnknownProtocolId
	ContainerEngineNotFoundId
	SandboxTargetMissingId
	ListenFailedId
	HostKeyFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	docLinks []HttpLink
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal markdown using the given glamour
// style ("dark", "light", "notty", or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load the configuration!

lure reads its settings from flags, ` + "`LURE_*`" + ` environment variables and an
optional configuration file passed with ` + "`--config`" + `.

## Things you can try:
- Check the path given to ` + "`--config`" + `
- Validate the file syntax (YAML, TOML or CUE)
- Durations take Go syntax, e.g. ` + "`30s`" + ` or ` + "`1m30s`" + `

## Example:
~~~yaml
services: services.d
records: records
sandbox:
  engine: docker
  timeout: 30s
metrics:
  address: 127.0.0.1:9100
~~~`,
	}

	servicesNotFoundIssue = &Issue{
		id: ServicesNotFoundId,
		mdMsg: `
# No services configured!

The services directory does not contain any ` + "`*.yml`" + `, ` + "`*.yaml`" + ` or
` + "`*.toml`" + ` file, so there is nothing to listen on.

## Things you can try:
- Point lure at the right directory:
~~~
$ lure serve --services /etc/lure/services.d
~~~
- Create a service file, for example ` + "`services.d/ssh.yml`" + `:
~~~yaml
proto: ssh
address: 0.0.0.0:2222
commands:
  - parser: '^uname( -a)?$'
    handler: 'Linux web01 5.15.0-91-generic x86_64 GNU/Linux'
~~~`,
	}

	serviceInvalidIssue = &Issue{
		id: ServiceInvalidId,
		mdMsg: `
# Invalid service definition!

A service file does not match the expected schema.

## Common issues:
- Missing ` + "`proto`" + ` or ` + "`address`" + `
- A command entry without ` + "`parser`" + `
- Unknown top level keys (only ` + "`proto`" + `, ` + "`address`" + `, ` + "`commands`" + ` and ` + "`config`" + ` are allowed)

## Things you can try:
- Check the field path printed with the error
- Run ` + "`lure validate`" + ` after each change`,
	}

	ruleInvalidIssue = &Issue{
		id: RuleInvalidId,
		mdMsg: `
# Invalid command rule!

A command parser is not a valid regular expression, or a ` + "`@docker`" + ` handler is malformed.

## Things you can try:
- Parsers use RE2 syntax: lookarounds and backreferences are not supported
- Live handlers have the form ` + "`@docker <container> <shell command>`" + `
- Capture groups are referenced in handlers as ` + "`{{$1}}`" + `, ` + "`{{$2}}`" + `, ...`,
		extLinks: []HttpLink{"https://github.com/google/re2/wiki/Syntax"},
	}

	unknownProtocolIssue = &Issue{
		id: UnknownProtocolId,
		mdMsg: `
# Unknown protocol!

The ` + "`proto`" + ` of a service does not name a registered protocol.

## Things you can try:
- Use one of the protocols listed in the error message
- Check for typos such as ` + "`shh`" + ``,
	}

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

Rules with ` + "`@docker`" + ` handlers run their command inside a container, which
requires Docker or Podman on the host.

## Things you can try:
- Install Docker or Podman and make sure the binary is on ` + "`PATH`" + `
- Select the engine explicitly:
~~~
$ lure serve --engine podman
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/engine/install/", "https://podman.io/docs/installation"},
	}

	sandboxTargetMissingIssue = &Issue{
		id: SandboxTargetMissingId,
		mdMsg: `
# Sandbox container is not running!

A ` + "`@docker`" + ` handler names a container that the engine cannot find.

## Things you can try:
- Start the container before lure, e.g.:
~~~
$ docker run -d --name box --network none debian:stable-slim sleep infinity
~~~
- Make sure the name in the handler matches ` + "`docker ps`" + ``,
	}

	listenFailedIssue = &Issue{
		id: ListenFailedId,
		mdMsg: `
# Failed to listen!

A service could not bind its address. No service was left running.

## Things you can try:
- Check that nothing else uses the port
- Ports below 1024 need elevated privileges or ` + "`CAP_NET_BIND_SERVICE`" + ``,
	}

	hostKeyFailedIssue = &Issue{
		id: HostKeyFailedId,
		mdMsg: `
# Failed to load the SSH host key!

The ` + "`config.host_key`" + ` file of an SSH service could not be read or created.

## Things you can try:
- Check permissions of the key file and its directory
- Remove a corrupt key file to let lure generate a new one`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		servicesNotFoundIssue.Id():        servicesNotFoundIssue,
		serviceInvalidIssue.Id():          serviceInvalidIssue,
		ruleInvalidIssue.Id():             ruleInvalidIssue,
		unknownProtocolIssue.Id():         unknownProtocolIssue,
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		sandboxTargetMissingIssue.Id():    sandboxTargetMissingIssue,
		listenFailedIssue.Id():            listenFailedIssue,
		hostKeyFailedIssue.Id():           hostKeyFailedIssue,
	}
)

// Values returns every known issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return int(a.id) - int(b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
