package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/homedash/dashd/internal/automation"
	"github.com/homedash/dashd/internal/httpapi"
	"github.com/homedash/dashd/internal/jobengine"
	"github.com/homedash/dashd/internal/tlsconfig"
)

const shutdownTimeout = 10 * time.Second

func runServer(config *serverConfig) error {
	level := slog.LevelInfo
	if config.debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: level},
	))

	automations, err := automation.Load(config.configPath)
	if err != nil {
		return err
	}

	if len(automations) == 0 {
		return errors.New("no automations configured")
	}

	logger.Info(
		"loaded automation catalogue",
		"path", config.configPath,
		"count", len(automations),
	)

	registry := jobengine.NewRegistry(automations, logger, config.gracePeriod)

	tlsConfig, err := tlsconfig.Setup(&tlsconfig.Config{
		CertPath: config.certPath,
		KeyPath:  config.keyPath,
	})
	if err != nil {
		return err
	}

	api := httpapi.NewServer(registry, logger, config.authToken)

	srv := &http.Server{
		Addr:      net.JoinHostPort(config.host, strconv.Itoa(int(config.port))),
		Handler:   api.Handler(),
		TLSConfig: tlsConfig,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		os.Interrupt,
	)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving", "addr", srv.Addr, "tls", tlsConfig != nil)

		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}

		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down")

		// Cancel running jobs and close the event hub first: that ends the
		// open SSE connections which would otherwise hold Shutdown until
		// the timeout.
		registry.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed, closing", "err", err)

			if err := srv.Close(); err != nil {
				return fmt.Errorf("close http server: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}
