package main

import (
	"L4STestbed/cmd"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
)

func main() {
	// an interrupt stops between steps; the current step still completes
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.WithError(err).Error("l4stestbed failed")
		stop()
		os.Exit(1)
	}
}
