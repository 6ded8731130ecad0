package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fadedpez/wingo/internal/app"
	"github.com/fadedpez/wingo/internal/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create and initialize the service
	wingo, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	// Start the service
	if err := wingo.Start(); err != nil {
		wingo.Shutdown()
		log.Fatalf("Failed to start: %v", err)
	}

	fmt.Println("Wingo is now running. Press CTRL-C to exit.")

	// Wait for interrupt signal to gracefully shutdown
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	<-sc

	// Cleanup and exit
	fmt.Println("Shutting down...")
	wingo.Shutdown()
}
