// Command audioldm-adapter runs one text-to-audio operation and prints the
// result as a single JSON line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cozy-creator/audio-adapters/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	stdout := cli.ReserveStdout()
	code := adapter.Run(ctx, os.Args[1:], stdout)
	stop()
	os.Exit(code)
}
