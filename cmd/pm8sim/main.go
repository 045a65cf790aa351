// pm8sim simulates a Watlow PM8 thermal controller on a Modbus RTU serial
// link and provides a polling client for it.
//
//	pm8sim serve --port /dev/ttyUSB0 --baud 9600
//	pm8sim poll  --port /dev/ttyUSB1 --unit-id 1 --set-sp 65 --interval 1000
//	pm8sim history --limit 20
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
