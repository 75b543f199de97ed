// Command bootstrap installs and verifies the repository toolchain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/repoforge/bootstrap/internal/cmd"
	"github.com/repoforge/bootstrap/internal/errors"
)

// main is the single exit site. Every failure anywhere in the run surfaces
// here as an error, is printed once, and maps to exactly one exit code.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := cmd.Execute(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[bootstrap][ERROR] %v\n", err)
		os.Exit(errors.ExitCodeFor(err).Int())
	}
}
