package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/facestream/internal/server"
	"github.com/RenatoCabral2022/facestream/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the player HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		store, err := openCache()
		if err != nil {
			return err
		}
		var st session.Store
		if store != nil {
			defer store.Close()
			st = store
		}

		logger.Info("facestream starting",
			zap.String("listen", cfg.ListenAddr),
			zap.String("service", client.Target()),
			zap.Int("maxPlayers", cfg.MaxPlayers),
			zap.Bool("cache", store != nil),
		)

		srv := server.New(cfg, client, st, logger)
		httpSrv := &http.Server{
			Addr:        cfg.ListenAddr,
			Handler:     srv.Handler(),
			ReadTimeout: 10 * time.Second,
			// Animation requests stay open for the whole exchange.
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logger.Info("HTTP API listening", zap.String("addr", cfg.ListenAddr))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errc:
			return err
		}

		logger.Info("shutting down")
		srv.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	},
}
