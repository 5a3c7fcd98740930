// Package cliutil provides the thin CLI-output conveniences shared by
// cmd/memcore's subcommands: terminal/CI detection and a small status
// writer, split between environment detection and message formatting.
package cliutil

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether w is a terminal file descriptor.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether the NO_COLOR environment variable is set,
// per the https://no-color.org convention.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

var ciEnvVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}

// DetectCI reports whether any well-known CI environment variable is set.
func DetectCI() bool {
	for _, v := range ciEnvVars {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}

// Mode selects how a command renders its output.
type Mode int

const (
	// ModePlain renders uncolored, non-interactive text: the safe default
	// for pipes, redirected output and CI.
	ModePlain Mode = iota
	// ModeColor renders colored status lines to an interactive terminal.
	ModeColor
)

// DetermineMode picks ModeColor only when out is a TTY, NO_COLOR is unset,
// forcePlain wasn't requested, and the process isn't running under CI.
func DetermineMode(out io.Writer, forcePlain bool) Mode {
	if forcePlain || DetectNoColor() || DetectCI() || !IsTTY(out) {
		return ModePlain
	}
	return ModeColor
}
