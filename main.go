package main

import (
	"github.com/custodian-sh/custodian/cmd"
)

// main is the entry point for the custodian application. Command-line
// parsing, configuration, and execution all live in the cmd package.
func main() {
	cmd.Execute()
}
