package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lumastack/retail-copilot/internal/api"
	"github.com/lumastack/retail-copilot/internal/capability"
	"github.com/lumastack/retail-copilot/internal/config"
	"github.com/lumastack/retail-copilot/internal/orchestrator"
	"github.com/lumastack/retail-copilot/internal/provider"
	"github.com/lumastack/retail-copilot/internal/retrieval"
	"github.com/lumastack/retail-copilot/internal/safety"
	"github.com/lumastack/retail-copilot/internal/warehouse"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting retail copilot...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/copilot.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Language model port
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Model: pc.Model, Extra: pc.Extra,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	var model orchestrator.ModelPort
	if len(router.ListProviders()) > 0 {
		model = router
	} else {
		logger.Warn("no providers configured, running with keyword classification only")
	}

	// Data backend port: live warehouse with optional Redis result cache,
	// simulation-only when no DSN is configured.
	var backend warehouse.Backend
	var schema warehouse.SchemaProvider
	var pg *warehouse.PostgresBackend
	if cfg.Warehouse.DSN != "" {
		pg, err = warehouse.NewPostgresBackend(cfg.Warehouse.DSN, logger)
		if err != nil {
			logger.Warn("warehouse unavailable, running with simulated data", zap.Error(err))
		} else {
			backend = pg
			schema = warehouse.NewPostgresSchema(pg, logger)
			if cfg.Redis.URL != "" && cfg.Warehouse.CacheTTLSeconds > 0 {
				cached, cerr := warehouse.NewCachedBackend(pg, cfg.Redis.URL,
					time.Duration(cfg.Warehouse.CacheTTLSeconds)*time.Second, logger)
				if cerr != nil {
					logger.Warn("result cache unavailable, executing uncached", zap.Error(cerr))
				} else {
					backend = cached
					defer cached.Close()
				}
			}
		}
	}

	// Optional retrieval index for the knowledge capability.
	var index *retrieval.Index
	if cfg.Retrieval.Enabled {
		var embedder retrieval.Embedder
		embCfg := retrieval.EmbeddingConfig{
			Provider: cfg.Retrieval.Embedding.Provider, Endpoint: cfg.Retrieval.Embedding.Endpoint,
			Model: cfg.Retrieval.Embedding.Model, APIKey: cfg.Retrieval.Embedding.APIKey,
			Dimension: cfg.Retrieval.Embedding.Dimension,
		}
		if embCfg.Provider == "local" {
			embedder = retrieval.NewLocalEmbedder(embCfg)
		} else {
			embedder = retrieval.NewAPIEmbedder(embCfg)
		}
		store, serr := retrieval.NewVectorStore(retrieval.QdrantConfig{
			Host: cfg.Retrieval.Qdrant.Host, Port: cfg.Retrieval.Qdrant.Port,
		})
		if serr != nil {
			logger.Warn("vector store unavailable, using static corpus", zap.Error(serr))
		} else {
			ix := retrieval.NewIndex(embedder, store, logger)
			if ierr := ix.Init(context.Background()); ierr != nil {
				logger.Warn("retrieval index init failed, using static corpus", zap.Error(ierr))
				store.Close()
			} else {
				index = ix
				defer store.Close()
			}
		}
	}

	filter := safety.NewFilter(model, cfg.Safety.Threshold, logger)
	sim := warehouse.NewSimulator(time.Now().UnixNano(), logger)

	knowledge := capability.NewKnowledge(model, index, logger)
	query := capability.NewQuery(model, backend, schema, sim, capability.QueryConfig{
		Budget: warehouse.Budget{
			MaxBytesBilled: cfg.Warehouse.MaxBytesBilled,
			Timeout:        time.Duration(cfg.Warehouse.QueryTimeoutMillis) * time.Millisecond,
		},
		LargeTables: cfg.Warehouse.LargeTables,
		RecencyDays: cfg.Warehouse.RecencyDays,
		RowLimit:    cfg.Warehouse.RowLimit,
	}, logger)

	supervisor := orchestrator.NewSupervisor(model, filter, knowledge, query,
		time.Duration(cfg.Orchestrator.CapabilityTimeoutMillis)*time.Millisecond, logger)

	handler := api.NewHandler(supervisor, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("retail copilot listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down retail copilot...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	if pg != nil {
		pg.Close()
	}
}
