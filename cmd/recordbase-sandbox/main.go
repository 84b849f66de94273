package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/recordbase/recordbase_sdk_go/internal/devseed"
	"github.com/recordbase/recordbase_sdk_go/pkg/recordbase/mock"
)

type serveOptions struct {
	addr       string
	seed       string
	latency    time.Duration
	fail       string
	signingKey string
	tokenTTL   time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordbase-sandbox",
		Short: "Local record-store backend for development",
		Long:  "Runs the in-memory mock backend over HTTP so clients can be exercised without a real server.",
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mock API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", ":8090", "listen address")
	cmd.Flags().StringVar(&opts.seed, "seed", "", "path to a YAML or JSON seed file")
	cmd.Flags().DurationVar(&opts.latency, "latency", 0, "artificial latency to inject per request")
	cmd.Flags().StringVar(&opts.fail, "fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	cmd.Flags().StringVar(&opts.signingKey, "signing-key", "", "HS256 key for issued tokens (random when empty)")
	cmd.Flags().DurationVar(&opts.tokenTTL, "token-ttl", 0, "lifetime of issued auth tokens")
	return cmd
}

func buildHandler(opts *serveOptions, logger *slog.Logger) (http.Handler, error) {
	var mockOpts []mock.Option
	if opts.signingKey != "" {
		mockOpts = append(mockOpts, mock.WithSigningKey([]byte(opts.signingKey)))
	}
	if opts.tokenTTL > 0 {
		mockOpts = append(mockOpts, mock.WithTokenTTL(opts.tokenTTL))
	}
	m := mock.New(mockOpts...)
	if opts.seed != "" {
		seed, err := devseed.Load(opts.seed)
		if err != nil {
			return nil, fmt.Errorf("load seed: %w", err)
		}
		if err := m.Seed(seed); err != nil {
			return nil, fmt.Errorf("apply seed: %w", err)
		}
	}

	failCfg, err := parseFailConfig(opts.fail)
	if err != nil {
		return nil, fmt.Errorf("parse fail flag: %w", err)
	}
	return withMiddleware(opts.latency, failCfg, logger, m.Handler()), nil
}

func runServe(ctx context.Context, opts *serveOptions, out io.Writer) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler, err := buildHandler(opts, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              opts.addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("recordbase-sandbox listening", "addr", opts.addr)
	host := opts.addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "export RECORDBASE_RUNTIME_MODE=http")
	fmt.Fprintf(out, "export RECORDBASE_API_URL=http://%s\n", host)
	fmt.Fprintln(out)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("recordbase-sandbox shutting down")
	return server.Shutdown(shutdownCtx)
}
