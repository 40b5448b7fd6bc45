package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/temirov/wpmu-clone/cmd/cli"
)

const (
	exitErrorTemplateConstant = "%v\n"
	failureExitCodeConstant   = 1
)

// main executes the wpmu-clone command-line application until it finishes or is interrupted.
func main() {
	executionContext, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	executionError := cli.Execute(executionContext)
	stop()

	if executionError != nil {
		fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
		os.Exit(failureExitCodeConstant)
	}
}
