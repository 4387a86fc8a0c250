package main

import (
	"chat-oracle/internal/console"
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := console.New().Execute(ctx, os.Args[1:])
	stop()

	os.Exit(code)
}
