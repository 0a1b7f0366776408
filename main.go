package main

import (
	"context"
	"os/signal"
	"syscall"

	huddle "github.com/putto11262002/huddle/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	huddle.Run(ctx)
}
