package main

import (
	"errors"
	"os"
)

// exitCodeErr lets a subcommand request a specific process exit code, e.g.
// the `2` required for a missing --calc-patch-from input file.
type exitCodeErr struct {
	code int
	err  error
}

func (e *exitCodeErr) Error() string { return e.err.Error() }
func (e *exitCodeErr) Unwrap() error { return e.err }

func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeErr{code: code, err: err}
}

func main() {
	err := NewRootCmd().Execute()
	if err == nil {
		return
	}

	var ec *exitCodeErr
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	os.Exit(1)
}
