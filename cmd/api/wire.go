package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/disagreement-ai/mediation/backend/internal/config"
	"github.com/disagreement-ai/mediation/backend/internal/logging"
	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediator"
	"github.com/disagreement-ai/mediation/backend/internal/store/mongostore"
	"github.com/disagreement-ai/mediation/backend/internal/store/sqlstore"
)

// openStore returns the configured session store and a func that releases it.
func openStore(ctx context.Context, cfg config.StoreConfig, log *logging.Logger) (dispute.Store, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn().Msg("using in-memory store, disagreements are lost on restart")
		return dispute.NewMemoryStore(), func() {}, nil

	case "sqlite", "postgres":
		store, err := sqlstore.Open(cfg.Driver, cfg.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("close sql store")
			}
		}, nil

	case "mongo":
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("close mongo store")
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// buildMediator selects the mediator gateway and bounds it with the configured timeout.
func buildMediator(ctx context.Context, cfg config.MediatorConfig, ai config.AIConfig, log *logging.Logger) (mediation.Mediator, error) {
	var next mediation.Mediator

	switch cfg.Mode {
	case "http":
		next = mediator.NewHTTPClient(cfg.URL, &http.Client{})
	case "ark":
		chatModel, err := ai.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("init ark chat model: %w", err)
		}
		ark, err := mediator.NewArkMediator(ctx, chatModel, mediator.ArkConfig{HistoryLimit: ai.HistoryLimit})
		if err != nil {
			return nil, err
		}
		next = ark
	case "", "static":
		next = mediator.NewStatic()
	default:
		return nil, fmt.Errorf("unsupported mediator mode %q", cfg.Mode)
	}

	log.Info().Str("mode", cfg.Mode).Dur("timeout", cfg.Timeout).Msg("mediator gateway ready")
	return mediator.WithTimeout(next, cfg.Timeout), nil
}
