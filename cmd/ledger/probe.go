package main

import (
	"context"
	"fmt"
	"time"

	"olympspa/internal/api"
	"olympspa/internal/client"

	"github.com/spf13/cobra"
)

func newProbeCmd(opts *rootOptions) *cobra.Command {
	var (
		baseURL  string
		grpcAddr string
		timeout  time.Duration
	)

	c := &cobra.Command{
		Use:   "probe",
		Short: "Check a running server's HTTP readiness and gRPC health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if baseURL == "" {
				baseURL = fmt.Sprintf("http://localhost:%d", cfg.HTTP.Port)
			}
			if grpcAddr == "" && cfg.GRPC.Enabled {
				grpcAddr = fmt.Sprintf("localhost:%d", cfg.GRPC.Port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			if err := client.New(baseURL, "").Ready(ctx); err != nil {
				return fmt.Errorf("http %s not ready: %w", baseURL, err)
			}
			fmt.Fprintf(out, "http %s ready\n", baseURL)

			if grpcAddr == "" {
				return nil
			}
			status, err := client.ProbeGRPC(ctx, grpcAddr, api.ServiceName)
			if err != nil {
				return fmt.Errorf("grpc %s: %w", grpcAddr, err)
			}
			fmt.Fprintf(out, "grpc %s %s\n", grpcAddr, status)
			return nil
		},
	}
	c.Flags().StringVar(&baseURL, "url", "", "HTTP base URL (default from config)")
	c.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC address (default from config when enabled)")
	c.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "overall probe timeout")
	return c
}
