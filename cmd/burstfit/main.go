package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kacperjurak/burstfit"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "burstfit: %v\n", err)
	}
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps errors onto process exit codes: 2 for bad input or
// configuration, 130 for interruption, 1 for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var usage usageError
	if errors.As(err, &usage) {
		return 2
	}
	switch burstfit.Classify(err) {
	case burstfit.KindConfig:
		return 2
	case burstfit.KindCancel:
		return 130
	}
	return 1
}

// usageError marks malformed command-line arguments.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }
