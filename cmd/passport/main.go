// Command passport manages digital product passports: the trace records of
// a product's bill of materials, its suppliers, compliance status changes
// and the public passport view.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		if !a.started {
			// Flag, argument or command-name errors.
			return exitUserError
		}
		return exitCode(err)
	}
	return exitSuccess
}
