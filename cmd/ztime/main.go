package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ztime/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ztime: %v\n", err)
		os.Exit(cli.ExitCode(err))
	}
}
