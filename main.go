// Command agentrt is the tool-execution runtime's CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgecore/agentrt/cmd"
	"github.com/forgecore/agentrt/pkg/agentcore/errkind"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd.SetContext(ctx)
	err := cmd.Execute()
	if ctx.Err() != nil {
		os.Exit(130)
	}
	if err == nil {
		os.Exit(0)
	}

	fmt.Fprintln(os.Stderr, "agentrt:", err)
	var kindErr *errkind.Error
	if errors.As(err, &kindErr) {
		os.Exit(kindErr.Kind.ExitCode())
	}
	os.Exit(1)
}
