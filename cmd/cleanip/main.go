package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/projectdiscovery/cleanip/internal/runner"
	"github.com/projectdiscovery/gologger"
)

func main() {
	options := runner.ParseOptions()
	cleanipRunner, err := runner.NewRunner(options)
	if err != nil {
		gologger.Fatal().Msgf("Could not create runner: %s\n", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup close handler: the first signal finishes the current address,
	// the second aborts the in-flight request
	go func() {
		<-c
		fmt.Println("\r- Ctrl+C pressed in Terminal, finishing current address (press again to abort)...")
		cleanipRunner.Stop()
		<-c
		fmt.Println("\r- Ctrl+C pressed in Terminal, Exiting...")
		cancel()
	}()

	err = cleanipRunner.Run(ctx)
	if closeErr := cleanipRunner.Close(); closeErr != nil {
		gologger.Error().Msgf("Could not write output: %s\n", closeErr)
	}
	if err != nil {
		gologger.Fatal().Msgf("Could not run cleanip: %s\n", err)
	}
}
