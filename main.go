package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tokentwister/flashpool/cmd"
	"github.com/tokentwister/flashpool/utils"

	"go.uber.org/zap"
)

func main() {
	log := utils.GetLogger()
	defer utils.CleanupLogger()

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Shutting down gracefully...")
		cancel()
	}()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Fatal("Command failed", zap.Error(err))
	}
}
