package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lehmann314159/palabrabox/internal/cli"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
