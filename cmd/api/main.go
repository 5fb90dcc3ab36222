package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"comfyremote/internal/bootstrap"
	"comfyremote/internal/generation"
	"comfyremote/internal/http/handlers"
	httpapi "comfyremote/internal/http/httpapi"
	"comfyremote/internal/infra"
	"comfyremote/internal/infra/geoip"
	"comfyremote/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	rt, err := bootstrap.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble generation pipeline")
	}
	defer rt.Close()

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer geo.Close()
	var lookup middleware.CountryLookup
	if geo != nil {
		lookup = geo.CountryCode
	}

	app := handlers.NewApp(rt.Service, rt.History, rt.Client, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:           &logger,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		SubmitsPerMinute: cfg.RateLimitPerMin,
		DefaultLocale:    generation.DefaultLocale(cfg),
		CountryLookup:    lookup,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("comfy", cfg.ComfyBaseURL).Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := rt.Service.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracking did not stop in time")
	}
	logger.Info().Msg("server stopped")
}
