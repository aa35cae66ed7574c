package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"go.sazak.io/monoclock/internal/log"
)

func main() {
	// Subscribe to signals for terminating the program.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := Execute(ctx)
	stop()
	if err != nil {
		log.Logger().Debug("Command failed", zap.Error(err))
		log.Logger().Close()
		os.Exit(1)
	}
	log.Logger().Close()
}
