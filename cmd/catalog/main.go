// Command catalog loads product catalogs and runs searches from the shell,
// and hosts the NATS ingestion worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/WessleyAI/catalog-search/engine/ingest"
	"github.com/WessleyAI/catalog-search/pkg/bootstrap"
	"github.com/WessleyAI/catalog-search/pkg/config"
	"github.com/WessleyAI/catalog-search/pkg/natsutil"
	"github.com/WessleyAI/catalog-search/pkg/tracing"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	dotenv string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Catalog ingestion and vector search",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.dotenv, "env-file", ".env", "Optional dotenv file")

	rootCmd.AddCommand(newIngestCmd(opts), newSearchCmd(opts), newWorkerCmd(opts))
	return rootCmd
}

// setup loads configuration and wires the application for one command.
func setup(ctx context.Context, opts *options, service string, stderr io.Writer) (*bootstrap.App, func(), error) {
	cfg, err := config.Load(opts.dotenv)
	if err != nil {
		return nil, nil, err
	}
	logger := bootstrap.NewLogger(stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{ServiceName: service, Endpoint: cfg.OTLPEndpoint, SampleRate: 1})
	if err != nil {
		return nil, nil, err
	}
	app, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		shutdownTracing(context.Background())
		return nil, nil, err
	}
	cleanup := func() {
		app.Close()
		shutdownTracing(context.Background())
	}
	return app, cleanup, nil
}

func newIngestCmd(opts *options) *cobra.Command {
	var (
		url     string
		file    string
		viaNATS bool
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a catalog CSV into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (url == "") == (file == "") {
				return errors.New("exactly one of --url or --file is required")
			}
			if viaNATS && url == "" {
				return errors.New("--nats requires --url")
			}
			ctx := cmd.Context()

			if viaNATS {
				return ingestViaNATS(ctx, opts, url, timeout, cmd.OutOrStdout())
			}

			app, cleanup, err := setup(ctx, opts, "catalog-cli", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			var sum ingest.Summary
			if url != "" {
				sum, err = app.Ingest.Ingest(ctx, url)
			} else {
				var raw []byte
				raw, err = os.ReadFile(file)
				if err != nil {
					return err
				}
				sum, err = app.Ingest.IngestCSV(ctx, string(raw))
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Catalog CSV URL")
	cmd.Flags().StringVar(&file, "file", "", "Local catalog CSV file")
	cmd.Flags().BoolVar(&viaNATS, "nats", false, "Hand the URL to a running worker over NATS")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "How long to wait for the worker's reply")
	return cmd
}

func ingestViaNATS(ctx context.Context, opts *options, url string, timeout time.Duration, out io.Writer) error {
	cfg, err := config.Load(opts.dotenv)
	if err != nil {
		return err
	}
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	reply, err := natsutil.Request[ingest.IngestRequest, ingest.IngestReply](ctx, nc, ingest.IngestSubject,
		ingest.IngestRequest{SourceURL: url}, timeout)
	if err != nil {
		return fmt.Errorf("ingest request: %w", err)
	}
	if reply.Error != "" {
		return errors.New(reply.Error)
	}
	return writeJSON(out, reply)
}

func newSearchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := setup(cmd.Context(), opts, "catalog-cli", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()
			return writeJSON(cmd.OutOrStdout(), app.Search.Search(cmd.Context(), strings.Join(args, " ")))
		},
	}
}

func newWorkerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve ingestion requests from NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, cleanup, err := setup(ctx, opts, "catalog-worker", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			nc, err := nats.Connect(app.Config.NATSURL)
			if err != nil {
				return fmt.Errorf("nats connect: %w", err)
			}
			defer nc.Drain()

			sub, err := ingest.StartConsumer(nc, app.Ingest, app.Log)
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer sub.Unsubscribe()

			app.Log.Info("worker: listening", "subject", ingest.IngestSubject, "queue", ingest.WorkerQueue)
			<-ctx.Done()
			app.Log.Info("worker: shutting down")
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
