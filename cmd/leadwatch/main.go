// The main package for the leadwatch executable.
package main

import (
	"github.com/JakeFAU/leadwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
