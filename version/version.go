package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

var (
	// Package is filled at linking time
	Package = "github.com/meshkit/meshkit"

	// Version holds the complete version number. Filled in at linking time.
	Version = "v0.1.0+unknown"

	// Revision is filled with the VCS (e.g. git) revision being used to build
	// the program at linking time.
	Revision = ""
)

// FprintVersion outputs the version string to the writer, in the following
// format, followed by a newline:
//
//	<cmd> <project> <version> <revision> <go version>
//
// For example, a binary "meshd" built from github.com/meshkit/meshkit
// with version "v0.1.0" would print the following:
//
//	meshd github.com/meshkit/meshkit v0.1.0 0a1b2c3 go1.22.1
func FprintVersion(w io.Writer) {
	fmt.Fprintln(w, os.Args[0], Package, Version, Revision, runtime.Version())
}

// PrintVersion outputs the version information, from Fprint, to stdout.
func PrintVersion() {
	FprintVersion(os.Stdout)
}
