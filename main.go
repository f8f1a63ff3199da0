// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/lureworks/lure/cmd/lure"

func main() {
	cmd.Execute()
}
