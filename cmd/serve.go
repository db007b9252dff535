package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cwbudde/annealcycle/internal/metrics"
	"github.com/cwbudde/annealcycle/internal/server"
	"github.com/cwbudde/annealcycle/internal/store"
)

var (
	serveAddr       string
	serveTraceEvery int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves search jobs over HTTP. Jobs are submitted as JSON with an inline
graph, run in the background and can be followed over server-sent events.
Checkpoints go to the configured store (fs or redis).`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().IntVar(&serveTraceEvery, "trace-every", 0, "Trace every N iterations under the data dir (0 = off)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	st, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}

	a := cfg.Anneal
	srv := server.NewServer(addr, server.Options{
		Store:        st,
		DataDir:      cfg.Store.DataDir,
		TraceEvery:   serveTraceEvery,
		Metrics:      m,
		MaxVertices:  cfg.Server.MaxVertices,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		ReadTimeout:  cfg.Server.ReadTimeout,
		Defaults: store.JobConfig{
			Method:             a.Method,
			Iterations:         a.Iterations,
			InitialTemperature: a.InitialTemperature,
			CoolingRate:        a.CoolingRate,
			Seed:               a.Seed,
			PopSize:            a.PopSize,
			CheckpointInterval: a.CheckpointInterval,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case s := <-sig:
		slog.Info("Received signal", "signal", s.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
