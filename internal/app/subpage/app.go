package subpage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/oblepiha-vpn/miniapp/internal/cache"
	"github.com/oblepiha-vpn/miniapp/internal/config"
	"github.com/oblepiha-vpn/miniapp/internal/deeplink"
	"github.com/oblepiha-vpn/miniapp/internal/metrics"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	cache  *cache.Cache
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	metrics.Register()

	cryptoClient := deeplink.NewCryptoClient(cfg.CryptoLink.Endpoint, cfg.CryptoLink.TimeoutCrypto)
	encrypter := deeplink.NewCachedEncrypter(cryptoClient, cacheRedis, cfg.CryptoLink.CacheTTL)
	resolver := deeplink.NewResolver(logger, encrypter)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, cfg, resolver)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		cache:  cacheRedis,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.cache.Close()
		return err
	}
}
