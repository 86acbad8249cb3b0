package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hlog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzerolog "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-agent-go/internal/api/handler"
	"resume-agent-go/internal/api/router"
	"resume-agent-go/internal/config"
	"resume-agent-go/internal/llm"
	"resume-agent-go/internal/logger"
	"resume-agent-go/internal/parser"
	"resume-agent-go/internal/pipeline"
	"resume-agent-go/internal/processor"
	"resume-agent-go/internal/storage"
	"resume-agent-go/internal/tracing"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "path to the config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	hlog.SetLogger(hertzzerolog.From(logger.Logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelFlush()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown incomplete")
		}
	}()

	st, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer st.Close()

	if st.Qdrant != nil {
		if points, err := st.Qdrant.CountPoints(ctx); err == nil {
			logger.Info().Int64("points", points).Msg("vector collection ready")
		}
	}

	models := llm.NewClientCache()
	defaults := llm.ModelConfig{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
	}

	controllerOpts := []pipeline.ControllerOption{
		pipeline.WithQPMLimits(cfg.ModelQPMLimits),
		pipeline.WithDefaultThreshold(cfg.Pipeline.ScreeningThreshold),
		pipeline.WithTaskModelResolver(cfg.GetModelForTask),
		pipeline.WithProfileFetcher(processor.NewHTTPProfileFetcher()),
	}
	if st.MySQL != nil {
		controllerOpts = append(controllerOpts, pipeline.WithActivityLogger(st.MySQL))
	}
	pipelines := pipeline.NewController(models, defaults, controllerOpts...)

	embedder := buildEmbedder(cfg, models)
	searchService := buildSearchService(cfg, st, embedder)
	stopConsumer := startIndexConsumer(ctx, cfg, st, embedder)
	if stopConsumer != nil {
		defer close(stopConsumer)
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h,
		handler.NewAnalysisHandler(pipelines),
		handler.NewDocumentHandler(cfg, st),
		handler.NewSearchHandler(searchService),
		handler.NewActivityHandler(st.MySQL),
	)

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("http server starting")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	logger.Info().Msg("shutdown complete")
}

// buildEmbedder returns nil when no credential is configured; search and
// indexing endpoints then answer 503 instead of failing at startup.
func buildEmbedder(cfg *config.Config, models *llm.ClientCache) *llm.Embedder {
	embedder, err := models.Embedder(llm.ModelConfig{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Embedding.Model,
		BaseURL: cfg.LLM.Embedding.BaseURL,
	}, cfg.LLM.Embedding.Dimensions)
	if err != nil {
		logger.Warn().Err(err).Msg("embedder unavailable, search and indexing disabled")
		return nil
	}
	if cfg.Qdrant.Dimension > 0 && embedder.Dimensions() != cfg.Qdrant.Dimension {
		logger.Warn().
			Int("embedder_dimensions", embedder.Dimensions()).
			Int("collection_dimensions", cfg.Qdrant.Dimension).
			Msg("embedding dimensions do not match the vector collection")
	}
	return embedder
}

func buildSearchService(cfg *config.Config, st *storage.Storage, embedder *llm.Embedder) *processor.SearchService {
	if st.Qdrant == nil || embedder == nil {
		return nil
	}
	svc, err := processor.NewSearchService(embedder, st.Qdrant,
		processor.WithDefaultSearchLimit(cfg.Qdrant.DefaultSearchLimit))
	if err != nil {
		logger.Warn().Err(err).Msg("search service unavailable")
		return nil
	}
	return svc
}

// startIndexConsumer declares the messaging topology and starts the indexing
// consumer. It returns nil when any required backend is missing.
func startIndexConsumer(ctx context.Context, cfg *config.Config, st *storage.Storage, embedder *llm.Embedder) chan<- struct{} {
	if st.RabbitMQ == nil || st.MinIO == nil || st.MySQL == nil || st.Qdrant == nil || embedder == nil {
		logger.Warn().Msg("index consumer disabled, missing broker, storage or embedder")
		return nil
	}

	if err := st.RabbitMQ.EnsureExchange(cfg.RabbitMQ.DocumentExchange, "direct", true); err != nil {
		logger.Error().Err(err).Msg("failed to declare document exchange")
		return nil
	}
	if err := st.RabbitMQ.EnsureQueue(cfg.RabbitMQ.DocumentIndexQueue, true); err != nil {
		logger.Error().Err(err).Msg("failed to declare index queue")
		return nil
	}
	if err := st.RabbitMQ.BindQueue(cfg.RabbitMQ.DocumentIndexQueue, cfg.RabbitMQ.DocumentExchange, cfg.RabbitMQ.UploadedRoutingKey); err != nil {
		logger.Error().Err(err).Msg("failed to bind index queue")
		return nil
	}

	chunker, err := parser.NewChunker(cfg.Pipeline.ChunkWindow, cfg.Pipeline.ChunkOverlap)
	if err != nil {
		logger.Error().Err(err).Msg("invalid chunker configuration")
		return nil
	}
	pdfExtractor, err := parser.NewPDFTextExtractor(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create pdf extractor")
		return nil
	}

	indexer, err := processor.NewDocumentIndexer(
		chunker,
		embedder,
		st.Qdrant,
		st.MinIO,
		st.MySQL,
		pdfExtractor,
		processor.WithActivityLogger(st.MySQL),
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create document indexer")
		return nil
	}

	consumerOpts := storage.ConsumerOptions{
		Workers:      cfg.RabbitMQ.IndexConsumerWorker,
		RetryBackoff: config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second),
	}
	stopCh, err := st.RabbitMQ.StartConsumer(cfg.RabbitMQ.DocumentIndexQueue, cfg.RabbitMQ.PrefetchCount, consumerOpts, indexer.HandleDelivery)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start index consumer")
		return nil
	}
	logger.Info().
		Str("queue", cfg.RabbitMQ.DocumentIndexQueue).
		Int("prefetch", cfg.RabbitMQ.PrefetchCount).
		Int("workers", consumerOpts.Workers).
		Msg("index consumer started")
	return stopCh
}
