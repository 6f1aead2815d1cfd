package main

import (
	"context"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/use-agent/noticesync/cmd/noticesync/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	commands.ExecuteContext(ctx)
}
