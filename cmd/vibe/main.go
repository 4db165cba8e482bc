package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"vibetodo/cmd/vibe/cmd"
	"vibetodo/internal/shutdown"
)

func main() {
	mgr := shutdown.NewManager()
	mgr.HandleSignals(os.Interrupt, syscall.SIGTERM)

	code := cmd.ExecuteContext(mgr.Context(), os.Args[1:], os.Stdout, os.Stderr, nil)
	if mgr.Signal() != nil {
		code = 130
	}

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = mgr.Wait(ctx)

	os.Exit(code)
}
