package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ixado/ixado/internal/webapi"
)

func newServeCommand(rootDir *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Web SSE Surface (HTTP API + /metrics) for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*rootDir, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	return cmd
}

func runServe(rootDir, addr string) error {
	a, err := newApp(rootDir)
	if err != nil {
		return err
	}

	srv := webapi.New(webapi.Config{Addr: addr, ProjectName: a.projectName, RootDir: a.rootDir}, a.cc, a.sup, a.repo, a.settings)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Printf("listening on %s\n", addr)
	select {
	case <-ctx.Done():
		srv.Shutdown()
		return nil
	case err := <-errCh:
		return err
	}
}
