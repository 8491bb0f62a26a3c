package main

import (
	"context"
	stdhttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"civicpulse/internal/core/imaging"
	"civicpulse/internal/platform/config"
	"civicpulse/internal/platform/logger"
	phttp "civicpulse/internal/platform/net/http"
	"civicpulse/internal/platform/net/middleware"
	"civicpulse/internal/platform/store"

	dedupsvc "civicpulse/internal/services/dedup/service"
	detectclient "civicpulse/internal/services/detect/client"
	detectdom "civicpulse/internal/services/detect/domain"
	detectsvc "civicpulse/internal/services/detect/service"
	ingesthttp "civicpulse/internal/services/ingest/http"
	ingestsvc "civicpulse/internal/services/ingest/service"
	issuerepo "civicpulse/internal/services/issues/repo"

	"github.com/go-chi/chi/v5"
)

func main() {
	// service-scoped config (CIVIC_API_*), backends under their own prefixes
	root := config.New()
	apiCfg := root.Prefix("CIVIC_API_")
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	detectCfg := root.Prefix("DETECT_")
	ingestCfg := root.Prefix("INGEST_")
	dedupCfg := root.Prefix("DEDUP_")

	l := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Config{
		URL:      pgCfg.MustString("DBURL"),
		MaxConns: int32(pgCfg.MayInt("MAX_CONNS", 4)),
	})
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer st.Close()

	repo := issuerepo.NewPG(st.Pool)

	threshold := detectCfg.MayFloat64("THRESHOLD", 0.4)
	classifier := detectclient.New(detectclient.Config{
		URL:     detectCfg.MustString("URL"),
		Token:   detectCfg.MayString("TOKEN", ""),
		Timeout: detectCfg.MayDuration("TIMEOUT", 15*time.Second),
	})
	detector := detectsvc.New(
		classifier,
		[]detectdom.Policy{
			detectdom.VandalismPolicy(threshold),
			detectdom.FloodingPolicy(threshold),
		},
		detectsvc.Config{
			Timeout:    detectCfg.MayDuration("TIMEOUT", 15*time.Second),
			CacheTTL:   detectCfg.MayDuration("CACHE_TTL", 10*time.Minute),
			MaxEntries: detectCfg.MayInt("CACHE_ENTRIES", 4096),
		},
	)

	dedup := dedupsvc.New(repo, dedupsvc.Config{
		RadiusM: dedupCfg.MayFloat64("RADIUS_M", 100),
		Window:  dedupCfg.MayDuration("WINDOW", 24*time.Hour),
	})

	imageCfg := imaging.Config{
		MaxBytes:    ingestCfg.MayInt64("MAX_UPLOAD_BYTES", 20<<20),
		MaxDim:      ingestCfg.MayInt("MAX_IMAGE_DIM", 1024),
		JPEGQuality: ingestCfg.MayInt("JPEG_QUALITY", 85),
	}
	pipeline := ingestsvc.New(
		ingestsvc.Deps{Detector: detector, Dedup: dedup, Reports: repo},
		ingestsvc.Config{
			UserCap: ingestCfg.MayInt("USER_CAP", 5),
			IPCap:   ingestCfg.MayInt("IP_CAP", 10),
			Window:  ingestCfg.MayDuration("WINDOW", time.Hour),
			Image:   imageCfg,
		},
	)

	handlers := ingesthttp.New(pipeline, detector, dedup, imaging.NewValidator(imageCfg), ingesthttp.Config{
		MaxUploadBytes: imageCfg.MaxBytes,
	})

	srv := phttp.NewServer(apiCfg, func(m *chi.Mux) {
		m.Use(middleware.Defaults()...)
		m.Use(middleware.CORS(middleware.CORSOptions{
			AllowedOrigins: apiCfg.MayCSV("CORS_ORIGINS", []string{"*"}),
		}))
		m.Use(middleware.AccessLog(middleware.AccessLogOptions{
			Slow: apiCfg.MayDuration("SLOW_REQ", 2*time.Second),
		}))
	})

	handlers.Mount(srv.Mux())
	srv.Mux().Get("/health", phttp.Handle(func(r *stdhttp.Request) phttp.Response {
		return phttp.OK(map[string]string{"status": "ok", "service": "civicpulse-api"})
	}))
	srv.Mux().Get("/", phttp.Handle(func(r *stdhttp.Request) phttp.Response {
		return phttp.OK(map[string]string{
			"service": "civicpulse-api",
			"docs":    "/api/v1",
		})
	}))

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			l.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.Run(ctx); err != nil {
		l.Panic().Err(err).Msg("http server stopped")
	}
}
