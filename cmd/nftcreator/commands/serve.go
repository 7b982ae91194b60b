package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftcreator/internal/config"
	"nftcreator/internal/idempotency"
	"nftcreator/internal/server"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service with the submission page and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				cfg.Service.HTTPPort = port
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}

			store, closeStore, err := openReplayStore(ctx, cfg.Service, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			apiServer := server.NewServer(cfg, server.Deps{
				Creator: p.creator,
				Checker: p.checker,
				Store:   store,
				Metrics: p.metrics,
				Journal: p.journal,
				RPC:     p.rpc,
				Logger:  logger,
			})

			errCh := make(chan error, 1)
			go func() {
				if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return apiServer.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default API_HTTP_PORT or 3000)")
	return cmd
}

// openReplayStore picks PostgreSQL when DATABASE_URL is set, otherwise a
// JSON file, or memory in dry-run mode.
func openReplayStore(ctx context.Context, svc config.ServiceConfig, logger *zap.Logger) (idempotency.Store, func(), error) {
	switch {
	case dryRun:
		return idempotency.NewMemoryStore(), func() {}, nil
	case svc.DatabaseURL != "":
		pg, err := idempotency.NewPostgresStore(ctx, svc.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		go pruneReplays(ctx, pg, logger)
		return pg, pg.Close, nil
	default:
		fs, err := idempotency.NewFileStore(svc.IdempotencyStorePath)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}

func pruneReplays(ctx context.Context, pg *idempotency.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := pg.Prune(ctx, time.Now())
		if err != nil && ctx.Err() == nil {
			logger.Warn("prune replay records", zap.Error(err))
		} else if n > 0 {
			logger.Debug("pruned replay records", zap.Int64("count", n))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
