package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"thumbnailer/internal/adapter/repo"
	"thumbnailer/internal/domain"
	"thumbnailer/internal/http/handlers"
	httpapi "thumbnailer/internal/http/httpapi"
	"thumbnailer/internal/infra"
	"thumbnailer/internal/infra/geoip"
	"thumbnailer/internal/metrics"
	"thumbnailer/internal/middleware"
	"thumbnailer/internal/providers/genai"
	"thumbnailer/internal/providers/image"
	"thumbnailer/internal/providers/prompt"
	"thumbnailer/internal/storage"
	"thumbnailer/internal/thumbnail"
	"thumbnailer/internal/upload"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open request store")
	}
	defer closeStore()

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.StoragePath).Msg("failed to prepare storage")
	}

	httpClient := &http.Client{Timeout: cfg.CollaboratorTimeout}
	var gemini *genai.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err = genai.NewClient(genai.Options{
			APIKey:      cfg.GeminiAPIKey,
			BaseURL:     cfg.GeminiBaseURL,
			TextModel:   cfg.GeminiTextModel,
			ImageModel:  cfg.GeminiImageModel,
			VisionModel: cfg.GeminiVisionModel,
			HTTPClient:  httpClient,
			Logger:      &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build gemini client")
		}
	}

	refiner, err := newRefiner(cfg, gemini, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.PromptProvider).Msg("failed to build prompt refiner")
	}
	synthesizer, err := newSynthesizer(cfg, gemini)
	if err != nil {
		logger.Fatal().Err(err).Str("provider", cfg.ImageProvider).Msg("failed to build image synthesizer")
	}

	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("geoip disabled")
	}
	var lookup middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		lookup = resolver.Lookup
	}

	rec := metrics.New()
	svc := thumbnail.NewService(store, refiner, synthesizer, files, logger, thumbnail.WithRecorder(rec))
	app := &handlers.App{
		Logger:  logger,
		Service: svc,
		Uploads: upload.NewHandoff(files),
		Files:   files,
		Metrics: rec,
	}
	if cfg.UploadAnalysis && gemini != nil {
		app.Analyzer = gemini
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		Observer:       rec,
		MetricsHandler: rec.Handler(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  lookup,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("store", cfg.StoreDriver).
			Str("refiner", refiner.Name()).
			Str("synthesizer", synthesizer.Name()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.RequestStore, func(), error) {
	switch cfg.StoreDriver {
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewPostgresStore(infra.NewSQLRunner(pool, logger)), pool.Close, nil
	case infra.StoreDriverRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewRedisStore(client), func() { _ = client.Close() }, nil
	default:
		logger.Warn().Msg("using in-memory request store; requests are lost on restart")
		return repo.NewMemoryStore(), func() {}, nil
	}
}

func newRefiner(cfg *infra.Config, gemini *genai.Client, httpClient *http.Client) (prompt.Refiner, error) {
	switch cfg.PromptProvider {
	case prompt.ProviderGemini:
		if gemini == nil {
			return nil, fmt.Errorf("gemini refiner needs GEMINI_API_KEY")
		}
		return prompt.NewGeminiRefiner(gemini), nil
	case prompt.ProviderOllama:
		return prompt.NewOllamaRefiner(prompt.OllamaOptions{Host: cfg.OllamaHost, Model: cfg.OllamaModel, HTTPClient: httpClient})
	case prompt.ProviderStatic:
		return prompt.NewStaticRefiner(), nil
	default:
		return prompt.NewOpenAIRefiner(prompt.OpenAIOptions{
			APIKey:     cfg.OpenAIAPIKey,
			Model:      cfg.OpenAIModel,
			BaseURL:    cfg.OpenAIBaseURL,
			HTTPClient: httpClient,
		})
	}
}

func newSynthesizer(cfg *infra.Config, gemini *genai.Client) (image.Synthesizer, error) {
	switch cfg.ImageProvider {
	case image.ProviderSynthetic:
		return image.NewSyntheticSynthesizer(), nil
	default:
		if gemini == nil {
			return nil, fmt.Errorf("gemini synthesizer needs GEMINI_API_KEY")
		}
		return image.NewGeminiSynthesizer(gemini), nil
	}
}
