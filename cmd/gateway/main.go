// Package main is the entrypoint for the event gateway service.
// The gateway handles WebSocket connections, tenant rooms, presence,
// and realtime event broadcast.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/attitudes-vip/event-gateway/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{Name: "gateway"}, nil)
}
