package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/disagreement-ai/mediation/backend/internal/handler"
	"github.com/disagreement-ai/mediation/backend/internal/middleware"
	"github.com/disagreement-ai/mediation/backend/internal/realtime"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and realtime server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if addr != "" {
				cfg.Server.Addr = addr
			}

			store, closeStore, err := openStore(ctx, cfg.Store, log)
			if err != nil {
				return err
			}
			defer closeStore()

			med, err := buildMediator(ctx, cfg.Mediator, cfg.AI, log)
			if err != nil {
				return err
			}

			hub := realtime.NewHub(log, realtime.WithCheckOrigin(middleware.OriginChecker(cfg.Server.AllowedOrigins)))
			defer hub.Close()

			policy := mediation.NewPolicy(mediation.MediatorIdentity{
				ID:          cfg.Mediator.ID,
				DisplayName: cfg.Mediator.DisplayName,
			})
			svc := mediation.NewService(store, policy, hub, med, log, mediation.Config{
				MaxRetries:  cfg.Mediation.MaxRetries,
				AutoMediate: cfg.Mediator.AutoTrigger,
			})

			router := handler.NewRouter(handler.Deps{
				Mediation:      svc,
				Hub:            hub,
				Log:            log,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			})

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			log.Info().
				Str("addr", cfg.Server.Addr).
				Str("store", cfg.Store.Driver).
				Str("mediator", cfg.Mediator.Mode).
				Msg("mediation backend listening")

			err = runServer(ctx, srv)
			// Let in-flight mediator turns land before the store closes.
			svc.Wait()
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides PORT")
	return cmd
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
