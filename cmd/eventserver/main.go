// Command eventserver runs a TCP reactor that logs every connection event,
// optionally echoing received bytes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/joeycumines/go-eventserver"
	"github.com/joeycumines/go-eventserver/workerpool"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

// drainTimeout bounds how long pending notifications may take to run, once
// the server is done.
const drainTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand(os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventserver",
		Short: "Run a reactor-pattern TCP server",
		Long: `eventserver accepts TCP connections on a single listening socket, and logs
every accept, read, and disconnect, as JSON to stderr.

Flags may also be set via environment variables (e.g. EVENTSERVER_PORT), or
a config file (--config). Flags take precedence over environment variables,
which take precedence over the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				_, _ = fmt.Fprintln(stderr, "eventserver:", err)
				return err
			}
			logger := newLogger(stderr, cfg.LogLevel)
			if err := serve(cmd.Context(), cfg, logger, nil); err != nil {
				logger.Err().Err(err).Log("exiting")
				return err
			}
			return nil
		},
	}
	cmd.SetErr(stderr)
	registerFlags(cmd.Flags())
	return cmd
}

func newLogger(w io.Writer, level string) *logiface.Logger[logiface.Event] {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = logiface.LevelInformational
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(lvl),
	).Logger()
}

var errServerFailed = errors.New("eventserver: server reported a failure")

// serve runs a server until ctx is done, or the server stops on its own
// (which implies a failure). If started is non-nil, it receives the server
// once it has been started.
func serve(ctx context.Context, cfg cliConfig, logger *logiface.Logger[logiface.Event], started func(*eventserver.TCPServer)) error {
	pool := workerpool.New(cfg.Workers, workerpool.WithLogger(logger))
	handler := &logHandler{logger: logger, echo: cfg.Echo}

	server, err := eventserver.NewTCPServer(cfg.serverConfig(), handler, pool, eventserver.WithLogger(logger))
	if err != nil {
		_ = pool.Close()
		return err
	}

	server.Start()
	if started != nil {
		started(server)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-ctx.Done():
			server.Stop()
		case <-server.Done():
		}
		return nil
	})

	g.Go(func() error {
		<-server.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := pool.Shutdown(drainCtx); err != nil {
			_ = pool.Close()
			return fmt.Errorf("eventserver: drain notifications: %w", err)
		}
		if handler.failures.Load() != 0 {
			return errServerFailed
		}
		return nil
	})

	return g.Wait()
}
