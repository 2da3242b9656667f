package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/kognic/kognic-auth-go/cmd/kognic-auth/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.Execute(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
